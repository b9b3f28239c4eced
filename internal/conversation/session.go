// Package conversation holds the assistant's per-visitor conversation state:
// the turn history, the simulated thinking delay and the celebration flag.
package conversation

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/portfolio-assistant/internal/domain"
	"github.com/ashureev/portfolio-assistant/internal/intent"
)

// Config controls the session timing.
type Config struct {
	ThinkMin       time.Duration
	ThinkMax       time.Duration
	CelebrationTTL time.Duration
}

// DefaultConfig returns the timings of the live site.
func DefaultConfig() Config {
	return Config{
		ThinkMin:       800 * time.Millisecond,
		ThinkMax:       1500 * time.Millisecond,
		CelebrationTTL: 3 * time.Second,
	}
}

// Validate checks the timing bounds.
func (c Config) Validate() error {
	if c.ThinkMin < 0 {
		return errors.New("think min cannot be negative")
	}
	if c.ThinkMax < c.ThinkMin {
		return errors.New("think max must be >= think min")
	}
	if c.CelebrationTTL <= 0 {
		return errors.New("celebration ttl must be positive")
	}
	return nil
}

// Capture is the speech capture the session stops when text is submitted.
type Capture interface {
	Stop()
}

// EventKind identifies a session event.
type EventKind string

const (
	EventTurn    EventKind = "turn"
	EventStatus  EventKind = "status"
	EventCleared EventKind = "cleared"
)

// Status is the set of flags shown next to the history.
type Status struct {
	Composing   bool `json:"composing"`
	Capturing   bool `json:"capturing"`
	Celebrating bool `json:"celebrating"`
}

// State is a copy of the session state.
type State struct {
	Turns []domain.Turn `json:"turns"`
	Status
}

// Event describes a change to the session. Turn is set for EventTurn, Turns
// for EventCleared. Status is always the status after the change.
type Event struct {
	Kind   EventKind
	Turn   *domain.Turn
	Turns  []domain.Turn
	Status Status
}

// Observer receives session events in the order they happen. It is called
// with the session lock held: it must not block or call back into the
// session.
type Observer func(Event)

// Option configures a Session.
type Option func(*Session)

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(sess *Session) {
		sess.sched = s
	}
}

// WithCapture sets the speech capture stopped on submit.
func WithCapture(c Capture) Option {
	return func(sess *Session) {
		sess.capture = c
	}
}

// WithObserver registers the event callback.
func WithObserver(fn Observer) Option {
	return func(sess *Session) {
		sess.observer = fn
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(sess *Session) {
		sess.logger = l
	}
}

// WithClock sets the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		sess.now = now
	}
}

// Session is one visitor's conversation. All methods are safe for
// concurrent use.
type Session struct {
	engine   *intent.Engine
	cfg      Config
	sched    Scheduler
	capture  Capture
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	ids         *idSource
	turns       []domain.Turn
	epoch       uint64
	lastRequest uint64
	pending     map[uint64]Timer
	composing   bool
	capturing   bool
	celebrating bool
	celebration uint64
	celebTimer  Timer
	closed      bool
}

// NewSession creates a session whose history starts with the opening
// greeting.
func NewSession(engine *intent.Engine, cfg Config, opts ...Option) *Session {
	s := &Session{
		engine:  engine,
		cfg:     cfg,
		sched:   SystemScheduler,
		now:     time.Now,
		ids:     newIDSource(),
		pending: make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.appendLocked(engine.Greeting(false), domain.SpeakerAssistant)
	return s
}

// Submit appends a visitor turn and schedules the assistant's reply. Blank
// text is ignored and Submit reports false.
func (s *Session) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	turn := s.appendLocked(text, domain.SpeakerUser)
	s.emitLocked(Event{Kind: EventTurn, Turn: &turn})

	stopCapture := s.capturing && s.capture != nil
	s.capturing = false

	if s.engine.Celebrates(text) {
		s.startCelebrationLocked()
	}

	s.lastRequest++
	req := s.lastRequest
	epoch := s.epoch
	delay := s.thinkDelay()
	s.pending[req] = s.sched.AfterFunc(delay, func() {
		s.reply(epoch, req, text)
	})
	s.composing = true
	s.emitLocked(Event{Kind: EventStatus, Status: s.statusLocked()})

	s.logger.Debug("[SESSION] Turn submitted", "turn_id", turn.ID, "request", req, "delay", delay)
	capture := s.capture
	s.mu.Unlock()

	if stopCapture {
		capture.Stop()
	}
	return true
}

func (s *Session) thinkDelay() time.Duration {
	span := s.cfg.ThinkMax - s.cfg.ThinkMin
	if span <= 0 {
		return s.cfg.ThinkMin
	}
	return s.cfg.ThinkMin + rand.N(span+1)
}

func (s *Session) reply(epoch, req uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		s.logger.Debug("[SESSION] Dropping stale reply", "request", req)
		return
	}
	delete(s.pending, req)

	in, reply := s.engine.Reply(text)
	turn := s.appendLocked(reply, domain.SpeakerAssistant)
	s.emitLocked(Event{Kind: EventTurn, Turn: &turn})

	if req == s.lastRequest {
		s.composing = false
		s.emitLocked(Event{Kind: EventStatus, Status: s.statusLocked()})
	}
	s.logger.Debug("[SESSION] Reply appended", "request", req, "intent", in, "turn_id", turn.ID)
}

func (s *Session) startCelebrationLocked() {
	if s.celebTimer != nil {
		s.celebTimer.Stop()
	}
	s.celebrating = true
	s.celebration++
	seq := s.celebration
	s.celebTimer = s.sched.AfterFunc(s.cfg.CelebrationTTL, func() {
		s.endCelebration(seq)
	})
}

func (s *Session) endCelebration(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.celebration || !s.celebrating {
		return
	}
	s.celebrating = false
	s.celebTimer = nil
	s.emitLocked(Event{Kind: EventStatus, Status: s.statusLocked()})
}

// Clear discards the history and starts over with the fresh greeting.
// Replies still being composed are cancelled.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.cancelRepliesLocked()
	s.turns = nil
	s.appendLocked(s.engine.Greeting(true), domain.SpeakerAssistant)
	s.composing = false
	s.emitLocked(Event{Kind: EventCleared, Turns: s.turnsLocked(), Status: s.statusLocked()})
	s.logger.Info("[SESSION] Conversation cleared")
}

// Close cancels every timer and drops the composing and celebration flags.
// No events are delivered after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.cancelRepliesLocked()
	if s.celebTimer != nil {
		s.celebTimer.Stop()
		s.celebTimer = nil
	}
	s.celebration++
	s.composing = false
	s.celebrating = false
	s.capturing = false
	s.closed = true
}

func (s *Session) cancelRepliesLocked() {
	s.epoch++
	for req, t := range s.pending {
		t.Stop()
		delete(s.pending, req)
	}
}

// SetCapturing mirrors the speech capture state into the session status.
func (s *Session) SetCapturing(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.capturing == on {
		return
	}
	s.capturing = on
	s.emitLocked(Event{Kind: EventStatus, Status: s.statusLocked()})
}

// Snapshot returns a copy of the history and flags.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Turns: s.turnsLocked(), Status: s.statusLocked()}
}

// Turns returns a copy of the history.
func (s *Session) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnsLocked()
}

// Status returns the current flags.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Pending returns the number of replies still being composed.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// QuickActions returns the canned prompts a visitor can submit.
func (s *Session) QuickActions() []string {
	return s.engine.QuickActions()
}

func (s *Session) appendLocked(text string, speaker domain.Speaker) domain.Turn {
	now := s.now()
	turn := domain.Turn{
		ID:        s.ids.next(now),
		Text:      text,
		Speaker:   speaker,
		CreatedAt: now,
	}
	s.turns = append(s.turns, turn)
	return turn
}

func (s *Session) turnsLocked() []domain.Turn {
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) statusLocked() Status {
	return Status{
		Composing:   s.composing,
		Capturing:   s.capturing,
		Celebrating: s.celebrating,
	}
}

func (s *Session) emitLocked(ev Event) {
	if s.observer == nil {
		return
	}
	if ev.Kind == EventTurn {
		ev.Status = s.statusLocked()
	}
	s.observer(ev)
}
