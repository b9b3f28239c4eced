// Portfolio Assistant Server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/portfolio-assistant/internal/api"
	"github.com/ashureev/portfolio-assistant/internal/assistant"
	"github.com/ashureev/portfolio-assistant/internal/config"
	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/identity"
	"github.com/ashureev/portfolio-assistant/internal/intent"
	"github.com/ashureev/portfolio-assistant/internal/mail"
	"github.com/ashureev/portfolio-assistant/internal/middleware"
	"github.com/ashureev/portfolio-assistant/internal/speech"
	"github.com/ashureev/portfolio-assistant/internal/store"
	"github.com/ashureev/portfolio-assistant/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "speech_backend", cfg.Speech.Backend)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	// Response library, optionally overridden by a watched file.
	lib := intent.Embedded()
	var watcher *intent.Watcher
	if cfg.Assistant.LibraryPath != "" {
		lib, err = intent.LoadFile(cfg.Assistant.LibraryPath)
		if err != nil {
			return fmt.Errorf("load response library: %w", err)
		}
		slog.Info("[LIBRARY] Loaded override", "path", cfg.Assistant.LibraryPath)
	}
	library := intent.NewStore(lib)
	if cfg.Assistant.LibraryPath != "" {
		watcher, err = intent.NewWatcher(cfg.Assistant.LibraryPath, library, logger)
		if err != nil {
			return fmt.Errorf("watch response library: %w", err)
		}
	}
	engine := intent.NewEngine(library)

	// Speech backend.
	var speechSource assistant.SpeechSource = assistant.NoSpeech
	serverSpeech := false
	switch cfg.Speech.Backend {
	case config.SpeechRelay:
		speechSource = assistant.RelaySpeech(logger)
	case config.SpeechGRPC:
		rec, err := speech.NewGRPCRecognizer(speech.DefaultGRPCConfig(cfg.Speech.GRPCAddr), logger)
		if err != nil {
			slog.Warn("Failed to connect to speech service, speech capture will be disabled", "error", err)
			break
		}
		defer rec.Close()
		serverSpeech = rec.Available(ctx)
		speechSource = assistant.SharedSpeech(rec, serverSpeech)
	}

	// Contact form.
	var mailService *mail.Service
	if cfg.MailConfigured() {
		board := mail.NewStatusBoard(cfg.Mail.StatusTTL)
		defer board.Close()
		client := mail.NewClient(mail.Config{
			Endpoint:   cfg.Mail.Endpoint,
			ServiceID:  cfg.Mail.ServiceID,
			TemplateID: cfg.Mail.TemplateID,
			PublicKey:  cfg.Mail.PublicKey,
		}, nil, logger)
		mailService = mail.NewService(client, board, repo, logger)
	} else {
		slog.Info("[MAIL] Contact form disabled (MAIL_SERVICE_ID, MAIL_TEMPLATE_ID or MAIL_PUBLIC_KEY not set)")
	}

	// Initialize handlers.
	connections := assistant.NewConnectionManager()
	defer connections.CloseAll()

	allowedOrigin := "*"
	if !cfg.IsDevelopment() {
		allowedOrigin = cfg.AllowedOrigins()[0]
	}
	wsHandler := assistant.NewHandler(assistant.HandlerConfig{
		Engine: engine,
		Conversation: conversation.Config{
			ThinkMin:       cfg.Assistant.ThinkMin,
			ThinkMax:       cfg.Assistant.ThinkMax,
			CelebrationTTL: cfg.Assistant.CelebrationTTL,
		},
		Manager:       connections,
		Speech:        speechSource,
		Lang:          cfg.Speech.Lang,
		AllowedOrigin: allowedOrigin,
		IsDev:         cfg.IsDevelopment(),
		Logger:        logger,
	})

	baseHandler := api.NewHandler(repo, logger)
	healthHandler := api.NewHealthHandler(baseHandler, connections)
	assistantHandler := api.NewAssistantHandler(baseHandler, engine, serverSpeech, mailService != nil)
	visitorHandler := api.NewVisitorHandler(baseHandler)
	contactHandler := api.NewContactHandler(baseHandler, mailService, middleware.NewKeyedLimiter(cfg.Mail.RateLimit, cfg.Mail.RateLimit))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		assistantHandler.RegisterRoutes(r)
		visitorHandler.RegisterRoutes(r)
		contactHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/assistant", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked WebSocket connections are not closed by Shutdown.
		connections.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
