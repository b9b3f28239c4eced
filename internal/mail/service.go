package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/portfolio-assistant/internal/domain"
)

// Recorder persists delivery outcomes.
type Recorder interface {
	RecordContact(ctx context.Context, sub *domain.ContactSubmission) error
}

// Service validates, sends and records contact form submissions and keeps
// the per-visitor status up to date.
type Service struct {
	sender Sender
	board  *StatusBoard
	rec    Recorder
	logger *slog.Logger
}

// NewService wires a sender to a status board. rec may be nil.
func NewService(sender Sender, board *StatusBoard, rec Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sender: sender, board: board, rec: rec, logger: logger}
}

// Deliver sends msg for visitorID. Invalid messages are rejected before any
// status is shown.
func (s *Service) Deliver(ctx context.Context, visitorID string, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	s.board.Set(visitorID, Status{State: StateSending})
	err := s.sender.Send(ctx, msg)

	sub := &domain.ContactSubmission{
		VisitorID:   visitorID,
		SenderEmail: msg.Email,
		Subject:     msg.Subject,
		Status:      domain.ContactStatusSent,
		CreatedAt:   time.Now(),
	}
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindNetwork
		}
		sub.Status = domain.ContactStatusFailed
		sub.FailureKind = string(kind)
		s.board.Set(visitorID, Status{State: StateError, Kind: kind})
		s.logger.Warn("[MAIL] Delivery failed", "visitor_id", visitorID, "kind", kind, "error", err)
	} else {
		s.board.Set(visitorID, Status{State: StateSuccess})
	}

	if s.rec != nil {
		if recErr := s.rec.RecordContact(context.WithoutCancel(ctx), sub); recErr != nil {
			s.logger.Warn("[MAIL] Failed to record contact outcome", "visitor_id", visitorID, "error", recErr)
		}
	}
	return err
}

// Status returns the current status for visitorID.
func (s *Service) Status(visitorID string) Status {
	return s.board.Get(visitorID)
}

// IsClientError reports whether err was caused by the submitted message.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMessage)
}
