package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/portfolio-assistant/internal/domain"
	"github.com/ashureev/portfolio-assistant/internal/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

// fakeScheduler records timers and runs them only when a test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return &fakeHandle{s: s, t: t}
}

type fakeHandle struct {
	s *fakeScheduler
	t *fakeTimer
}

func (h *fakeHandle) Stop() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.t.stopped || h.t.fired {
		return false
	}
	h.t.stopped = true
	return true
}

// live returns timers that are neither stopped nor fired.
func (s *fakeScheduler) live() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs t unless it was stopped.
func (s *fakeScheduler) fire(t *fakeTimer) {
	s.mu.Lock()
	if t.stopped || t.fired {
		s.mu.Unlock()
		return
	}
	t.fired = true
	s.mu.Unlock()
	t.f()
}

// fireAnyway runs t even if it was stopped, the way a timer that raced its
// Stop call would.
func (s *fakeScheduler) fireAnyway(t *fakeTimer) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.f()
}

type fakeCapture struct {
	mu    sync.Mutex
	stops int
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	opts = append([]Option{WithScheduler(sched)}, opts...)
	s := NewSession(intent.NewEngine(intent.Embedded()), DefaultConfig(), opts...)
	t.Cleanup(s.Close)
	return s, sched
}

func TestNewSessionStartsWithGreeting(t *testing.T) {
	s, _ := newTestSession(t)

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.SpeakerAssistant, turns[0].Speaker)
	assert.Equal(t, intent.Embedded().Greeting.Opening, turns[0].Text)
	assert.Equal(t, Status{}, s.Status())
}

func TestSubmitHello(t *testing.T) {
	s, sched := newTestSession(t)

	require.True(t, s.Submit("Hello!"))

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, domain.SpeakerUser, turns[1].Speaker)
	assert.Equal(t, "Hello!", turns[1].Text)
	assert.True(t, s.Status().Composing)

	live := sched.live()
	require.Len(t, live, 1)
	assert.GreaterOrEqual(t, live[0].d, 800*time.Millisecond)
	assert.LessOrEqual(t, live[0].d, 1500*time.Millisecond)

	sched.fire(live[0])

	turns = s.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, domain.SpeakerAssistant, turns[2].Speaker)
	assert.Contains(t, intent.Embedded().ResponsesFor(intent.Greeting), turns[2].Text)
	assert.False(t, s.Status().Composing)
	assert.Zero(t, s.Pending())
}

func TestSubmitBlankIsNoop(t *testing.T) {
	s, sched := newTestSession(t)

	before := s.Snapshot()
	for _, text := range []string{"", "   ", "\t\n"} {
		assert.False(t, s.Submit(text))
	}
	assert.Equal(t, before, s.Snapshot())
	assert.Empty(t, sched.live())
}

func TestOverlappingSubmits(t *testing.T) {
	s, sched := newTestSession(t)

	require.True(t, s.Submit("hi"))
	require.True(t, s.Submit("thanks"))

	live := sched.live()
	require.Len(t, live, 2)

	// Fire the second reply first: composing clears once the latest
	// request resolves, and the earlier reply still appends afterwards.
	sched.fire(live[1])
	assert.False(t, s.Status().Composing)
	sched.fire(live[0])

	turns := s.Turns()
	require.Len(t, turns, 5)
	assert.Equal(t, "hi", turns[1].Text)
	assert.Equal(t, "thanks", turns[2].Text)
	assert.Equal(t, domain.SpeakerAssistant, turns[3].Speaker)
	assert.Equal(t, domain.SpeakerAssistant, turns[4].Speaker)
	assert.Contains(t, intent.Embedded().ResponsesFor(intent.Gratitude), turns[3].Text)
	assert.Contains(t, intent.Embedded().ResponsesFor(intent.Greeting), turns[4].Text)
}

func TestComposingTracksLatestRequest(t *testing.T) {
	s, sched := newTestSession(t)

	s.Submit("hi")
	s.Submit("thanks")
	live := sched.live()
	require.Len(t, live, 2)

	sched.fire(live[0])
	assert.True(t, s.Status().Composing, "older reply must not clear composing")
	sched.fire(live[1])
	assert.False(t, s.Status().Composing)
}

func TestTurnIDsIncrease(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, sched := newTestSession(t, WithClock(func() time.Time { return fixed }))

	for _, text := range []string{"hi", "projects", "skills"} {
		s.Submit(text)
	}
	for _, tm := range sched.live() {
		sched.fire(tm)
	}

	turns := s.Turns()
	require.Len(t, turns, 7)
	seen := make(map[string]bool)
	for i, turn := range turns {
		assert.False(t, seen[turn.ID], "duplicate id %s", turn.ID)
		seen[turn.ID] = true
		if i > 0 {
			assert.Less(t, turns[i-1].ID, turn.ID)
		}
	}
}

func TestClearLeavesSingleGreeting(t *testing.T) {
	s, sched := newTestSession(t)

	s.Submit("hi")
	s.Submit("projects")
	pending := sched.live()
	require.Len(t, pending, 2)

	s.Clear()

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.SpeakerAssistant, turns[0].Speaker)
	assert.Equal(t, intent.Embedded().Greeting.Fresh, turns[0].Text)
	assert.False(t, s.Status().Composing)
	assert.Empty(t, sched.live())

	// A reply timer that raced the clear must not touch the new history.
	sched.fireAnyway(pending[0])
	assert.Len(t, s.Turns(), 1)
	assert.False(t, s.Status().Composing)
}

func TestCloseDropsLateReplies(t *testing.T) {
	s, sched := newTestSession(t)

	s.Submit("wow, hello")
	pending := sched.live()
	require.Len(t, pending, 2)
	assert.True(t, s.Status().Celebrating)

	s.Close()
	assert.Equal(t, Status{}, s.Status())
	assert.Empty(t, sched.live())

	for _, tm := range pending {
		sched.fireAnyway(tm)
	}
	assert.Len(t, s.Turns(), 2)
	assert.False(t, s.Submit("hi"))
}

func TestCelebrationAutoClears(t *testing.T) {
	s, sched := newTestSession(t)

	s.Submit("That is awesome")
	assert.True(t, s.Status().Celebrating)

	var celebration *fakeTimer
	for _, tm := range sched.live() {
		if tm.d == 3*time.Second {
			celebration = tm
		}
	}
	require.NotNil(t, celebration)

	sched.fire(celebration)
	assert.False(t, s.Status().Celebrating)
}

func TestCelebrationRestartsOnRepeat(t *testing.T) {
	s, sched := newTestSession(t)

	s.Submit("wow")
	first := sched.live()
	s.Submit("amazing")

	// The first celebration timer was replaced; racing it is harmless.
	var old *fakeTimer
	for _, tm := range first {
		if tm.d == 3*time.Second {
			old = tm
		}
	}
	require.NotNil(t, old)
	assert.True(t, old.stopped)
	sched.fireAnyway(old)
	assert.True(t, s.Status().Celebrating)
}

func TestSubmitStopsCapture(t *testing.T) {
	capture := &fakeCapture{}
	s, _ := newTestSession(t, WithCapture(capture))

	s.SetCapturing(true)
	assert.True(t, s.Status().Capturing)

	s.Submit("tell me about her skills")
	assert.Equal(t, 1, capture.count())
	assert.False(t, s.Status().Capturing)

	// Not capturing: nothing to stop.
	s.Submit("thanks")
	assert.Equal(t, 1, capture.count())
}

func TestObserverSeesEventsInOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	s, sched := newTestSession(t, WithObserver(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))

	s.Submit("hi")
	sched.fire(sched.live()[0])
	s.Clear()

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventTurn, EventStatus, EventTurn, EventStatus, EventCleared}, kinds)
	assert.Equal(t, domain.SpeakerUser, events[0].Turn.Speaker)
	assert.True(t, events[1].Status.Composing)
	assert.False(t, events[3].Status.Composing)
	assert.Len(t, events[4].Turns, 1)
}

func TestSystemSchedulerReplies(t *testing.T) {
	cfg := Config{ThinkMin: time.Millisecond, ThinkMax: 5 * time.Millisecond, CelebrationTTL: time.Millisecond}
	done := make(chan struct{}, 1)
	s := NewSession(intent.NewEngine(intent.Embedded()), cfg, WithObserver(func(ev Event) {
		if ev.Kind == EventTurn && ev.Turn.Speaker == domain.SpeakerAssistant {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}))
	defer s.Close()

	require.True(t, s.Submit("what projects has she built"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reply never arrived")
	}
	turns := s.Turns()
	require.Len(t, turns, 3)
	assert.Contains(t, intent.Embedded().ResponsesFor(intent.Projects), turns[2].Text)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{ThinkMin: 2 * time.Second, ThinkMax: time.Second, CelebrationTTL: time.Second}.Validate())
	assert.Error(t, Config{ThinkMin: -1, ThinkMax: time.Second, CelebrationTTL: time.Second}.Validate())
	assert.Error(t, Config{ThinkMax: time.Second}.Validate())
}
