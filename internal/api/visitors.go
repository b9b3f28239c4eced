package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio-assistant/internal/identity"
)

// VisitorHandler serves the visitor counter.
type VisitorHandler struct {
	*Handler
}

// NewVisitorHandler creates the visitor counter endpoints.
func NewVisitorHandler(base *Handler) *VisitorHandler {
	return &VisitorHandler{Handler: base}
}

// RegisterRoutes registers visitor routes.
func (h *VisitorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/visitors", func(r chi.Router) {
		r.Get("/", h.Count)
		r.Post("/", h.Record)
	})
}

// Count returns the number of counted browser sessions.
func (h *VisitorHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.VisitCount(r.Context())
	if err != nil {
		h.logger.Error("[VISITORS] Failed to count visits", "error", err)
		Error(w, http.StatusInternalServerError, "failed to count visitors")
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"count": n})
}

// Record counts the caller's browser session once and returns the total.
func (h *VisitorHandler) Record(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID := identity.VisitorIDFromContext(ctx)
	sessionID := identity.SessionIDFromContext(ctx)
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session id is required")
		return
	}

	counted, err := h.repo.RecordVisit(ctx, visitorID, sessionID, time.Now())
	if err != nil {
		h.logger.Error("[VISITORS] Failed to record visit", "error", err, "visitor_id", visitorID)
		Error(w, http.StatusInternalServerError, "failed to record visit")
		return
	}

	n, err := h.repo.VisitCount(ctx)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to count visitors")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"count": n, "counted": counted})
}
