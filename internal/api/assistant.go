package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio-assistant/internal/intent"
)

// AssistantHandler exposes the intent engine over REST.
type AssistantHandler struct {
	*Handler
	engine          *intent.Engine
	speechSupported bool
	mailEnabled     bool
}

// NewAssistantHandler creates the assistant endpoints. speechSupported
// reports whether a server side speech backend is configured.
func NewAssistantHandler(base *Handler, engine *intent.Engine, speechSupported, mailEnabled bool) *AssistantHandler {
	return &AssistantHandler{Handler: base, engine: engine, speechSupported: speechSupported, mailEnabled: mailEnabled}
}

// RegisterRoutes registers assistant routes.
func (h *AssistantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Route("/api/assistant", func(r chi.Router) {
		r.Post("/classify", h.Classify)
		r.Get("/quick-actions", h.QuickActions)
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *AssistantHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"speech_supported": h.speechSupported,
		"mail_enabled":     h.mailEnabled,
		"quick_actions":    h.engine.QuickActions(),
	})
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify reports the intent and matched keyword for a message.
func (h *AssistantHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	in, keyword := h.engine.Explain(req.Text)
	JSON(w, http.StatusOK, map[string]string{
		"intent":  string(in),
		"keyword": keyword,
	})
}

// QuickActions returns the canned prompts offered under the greeting.
func (h *AssistantHandler) QuickActions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{"quick_actions": h.engine.QuickActions()})
}
