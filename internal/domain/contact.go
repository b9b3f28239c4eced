package domain

import (
	"time"
)

// ContactStatus is the outcome of a contact form delivery attempt.
type ContactStatus string

const (
	ContactStatusSent   ContactStatus = "sent"
	ContactStatusFailed ContactStatus = "failed"
)

// ContactSubmission records one contact form delivery attempt.
// Only the outcome is kept; the message body is never stored.
type ContactSubmission struct {
	ID          int64
	VisitorID   string
	SenderEmail string
	Subject     string
	Status      ContactStatus
	FailureKind string
	CreatedAt   time.Time
}
