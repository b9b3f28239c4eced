package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio-assistant/internal/identity"
	"github.com/ashureev/portfolio-assistant/internal/mail"
	"github.com/ashureev/portfolio-assistant/internal/middleware"
)

// ContactHandler handles the contact form.
type ContactHandler struct {
	*Handler
	svc     *mail.Service
	limiter *middleware.KeyedLimiter
}

// NewContactHandler creates the contact endpoints. svc may be nil when mail
// is not configured.
func NewContactHandler(base *Handler, svc *mail.Service, limiter *middleware.KeyedLimiter) *ContactHandler {
	return &ContactHandler{Handler: base, svc: svc, limiter: limiter}
}

// RegisterRoutes registers contact routes.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/contact", func(r chi.Router) {
		r.With(middleware.RateLimit(h.limiter, visitorKey)).Post("/", h.Submit)
		r.Get("/status", h.Status)
	})
}

func visitorKey(r *http.Request) string {
	if id := identity.VisitorIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}

// Submit delivers a contact form message.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		Error(w, http.StatusServiceUnavailable, "mail_not_configured")
		return
	}

	var msg mail.Message
	if !decode(w, r, &msg) {
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	err := h.svc.Deliver(r.Context(), visitorID, msg)
	switch {
	case err == nil:
		h.logger.Info("[MAIL] Contact message sent", "visitor_id", visitorID)
		JSON(w, http.StatusOK, map[string]string{"status": string(mail.StateSuccess)})
	case mail.IsClientError(err):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mail.ErrConfiguration):
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(mail.StateError), "error": string(mail.KindConfiguration)})
	default:
		JSON(w, http.StatusBadGateway, map[string]string{"status": string(mail.StateError), "error": string(mail.KindOf(err))})
	}
}

// Status returns the visitor's current delivery status.
func (h *ContactHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		JSON(w, http.StatusOK, mail.Status{})
		return
	}
	JSON(w, http.StatusOK, h.svc.Status(identity.VisitorIDFromContext(r.Context())))
}
