package domain

import (
	"time"
)

// Speaker identifies who authored a turn.
type Speaker string

const (
	// SpeakerUser marks a turn typed or spoken by the visitor.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant marks a turn produced by the assistant.
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message in the visible conversation history.
// Turns are immutable once created and only ever appended.
type Turn struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Speaker   Speaker   `json:"speaker"`
	CreatedAt time.Time `json:"created_at"`
}

// IsUser returns true if the turn was authored by the visitor.
func (t Turn) IsUser() bool {
	return t.Speaker == SpeakerUser
}
