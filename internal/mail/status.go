package mail

import (
	"sync"
	"time"
)

// State is the user-visible delivery status.
type State string

const (
	StateIdle    State = ""
	StateSending State = "sending"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Status is what the contact form shows for a visitor.
type Status struct {
	State     State     `json:"state"`
	Kind      Kind      `json:"kind,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type statusEntry struct {
	status Status
	seq    uint64
	timer  *time.Timer
}

// StatusBoard keeps the latest delivery status per visitor. Success and
// error statuses clear themselves after the TTL; a newer status replaces
// the pending clear.
type StatusBoard struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*statusEntry
	closed  bool
}

// NewStatusBoard creates a board whose final statuses last ttl.
func NewStatusBoard(ttl time.Duration) *StatusBoard {
	return &StatusBoard{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*statusEntry),
	}
}

// Set records a status for key.
func (b *StatusBoard) Set(key string, st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	e, ok := b.entries[key]
	if !ok {
		e = &statusEntry{}
		b.entries[key] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	st.UpdatedAt = b.now()
	e.status = st
	e.seq++

	if st.State == StateSuccess || st.State == StateError {
		seq := e.seq
		e.timer = time.AfterFunc(b.ttl, func() { b.expire(key, seq) })
	}
}

func (b *StatusBoard) expire(key string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok && e.seq == seq {
		delete(b.entries, key)
	}
}

// Get returns the status for key; StateIdle when nothing is pending.
func (b *StatusBoard) Get(key string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok {
		return e.status
	}
	return Status{}
}

// Close stops every pending clear.
func (b *StatusBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, e := range b.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(b.entries, key)
	}
	b.closed = true
}
