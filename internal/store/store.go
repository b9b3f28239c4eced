// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/portfolio-assistant/internal/domain"
)

// Repository persists visitor tallies and contact form outcomes. The
// conversation itself is never stored.
type Repository interface {
	// GetVisitor retrieves a visitor by ID. It returns nil, nil when unknown.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// UpsertVisitor creates or updates a visitor record.
	UpsertVisitor(ctx context.Context, visitor *domain.Visitor) error

	// RecordVisit counts a browser session once. It reports whether this
	// call counted it.
	RecordVisit(ctx context.Context, visitorID, browserSessionID string, at time.Time) (bool, error)

	// VisitCount returns the number of counted browser sessions.
	VisitCount(ctx context.Context) (int64, error)

	// RecordContact stores the outcome of a contact form delivery.
	RecordContact(ctx context.Context, sub *domain.ContactSubmission) error

	// RecentContacts returns the latest contact outcomes, newest first.
	RecentContacts(ctx context.Context, limit int) ([]domain.ContactSubmission, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
