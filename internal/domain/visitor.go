// Package domain contains core domain types for the portfolio assistant.
package domain

import (
	"time"
)

// Visitor represents an anonymous browser identity and its visit tally.
type Visitor struct {
	VisitorID   string    `json:"visitor_id"`
	Visits      int64     `json:"visits"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsReturning reports whether the visitor has been counted more than once.
func (v *Visitor) IsReturning() bool {
	return v.Visits > 1
}

// IdleFor returns how long the visitor has been inactive.
// Returns 0 if the visitor was seen in the future relative to now.
func (v *Visitor) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(v.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
