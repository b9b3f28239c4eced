// Package assistant serves the portfolio assistant over a WebSocket. Each
// connection drives one dialog, its conversation and optional speech
// capture.
package assistant

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/identity"
	"github.com/ashureev/portfolio-assistant/internal/intent"
	"github.com/ashureev/portfolio-assistant/internal/speech"
)

// SpeechSource builds the recognizer for one connection. browser reports
// whether the page said it can run recognition itself; notify delivers
// relay commands to it. The returned relay is non-nil only when the
// browser is the recognizer.
type SpeechSource func(browser bool, notify func(speech.RelayCommand)) (speech.Recognizer, *speech.RelayRecognizer)

// RelaySpeech uses the visitor's browser for recognition.
func RelaySpeech(logger *slog.Logger) SpeechSource {
	return func(browser bool, notify func(speech.RelayCommand)) (speech.Recognizer, *speech.RelayRecognizer) {
		relay := speech.NewRelayRecognizer(browser, notify, logger)
		return relay, relay
	}
}

// SharedSpeech uses one server side recognizer for every connection.
// available is the result of checking rec once at startup; connections do
// not check it again.
func SharedSpeech(rec speech.Recognizer, available bool) SpeechSource {
	shared := speech.WithKnownAvailability(rec, available)
	return func(bool, func(speech.RelayCommand)) (speech.Recognizer, *speech.RelayRecognizer) {
		return shared, nil
	}
}

// NoSpeech disables capture.
func NoSpeech(bool, func(speech.RelayCommand)) (speech.Recognizer, *speech.RelayRecognizer) {
	return nil, nil
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Engine        *intent.Engine
	Conversation  conversation.Config
	Manager       *ConnectionManager
	Speech        SpeechSource
	Lang          string
	AllowedOrigin string
	IsDev         bool
	Logger        *slog.Logger
}

// Handler upgrades requests to assistant connections.
type Handler struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Manager == nil {
		cfg.Manager = NewConnectionManager()
	}
	if cfg.Speech == nil {
		cfg.Speech = NoSpeech
	}
	if cfg.Lang == "" {
		cfg.Lang = speech.DefaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		// Without a browser session ID tabs cannot be told apart, so
		// never let them replace each other.
		sessionID = uuid.NewString()
	}
	logger := h.logger.With("visitor_id", visitorID, "session_id", sessionID)
	logger.Info("[ASSISTANT] Connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("[ASSISTANT] Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("[ASSISTANT] Failed to close websocket", "error", closeErr)
		}
	}()

	h.cfg.Manager.Register(visitorID, sessionID, ws)
	defer h.cfg.Manager.Unregister(visitorID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConnection(ctx, h.cfg, ws, r.URL.Query().Get("speech") == "1", logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writeLoop(ctx)
	}()

	c.sendSnapshot()
	c.readLoop(ctx)
	cancel()

	c.shutdown()
	wg.Wait()
	logger.Info("[ASSISTANT] Connection ended")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("[ASSISTANT] WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}
