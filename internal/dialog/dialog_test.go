package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// heldScheduler never fires; timers stay pending until stopped.
type heldScheduler struct{}

type heldTimer struct{}

func (heldTimer) Stop() bool { return true }

func (heldScheduler) AfterFunc(time.Duration, func()) conversation.Timer { return heldTimer{} }

type fakeCapture struct {
	mu      sync.Mutex
	active  bool
	starts  int
	stops   int
	changed func(bool)
}

func (c *fakeCapture) Start(context.Context) {
	c.mu.Lock()
	c.starts++
	c.active = true
	c.mu.Unlock()
	if c.changed != nil {
		c.changed(true)
	}
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	c.stops++
	was := c.active
	c.active = false
	c.mu.Unlock()
	if was && c.changed != nil {
		c.changed(false)
	}
}

func (c *fakeCapture) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func newDialog(t *testing.T) (*Controller, *fakeCapture) {
	t.Helper()
	engine := intent.NewEngine(intent.Embedded())
	capture := &fakeCapture{}
	var d *Controller
	d = New(func() *conversation.Session {
		return conversation.NewSession(engine, conversation.DefaultConfig(),
			conversation.WithScheduler(heldScheduler{}),
			conversation.WithCapture(capture),
		)
	}, WithCapture(capture))
	capture.changed = d.CaptureChanged
	t.Cleanup(func() { d.Close() })
	return d, capture
}

func TestRectContains(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 100, H: 50}

	assert.True(t, r.Contains(10, 20))
	assert.True(t, r.Contains(110, 70))
	assert.True(t, r.Contains(50, 40))
	assert.False(t, r.Contains(9, 40))
	assert.False(t, r.Contains(50, 71))
	assert.True(t, Rect{}.Empty())
	assert.False(t, r.Empty())
}

func TestOpenCloseIdempotent(t *testing.T) {
	d, _ := newDialog(t)

	assert.False(t, d.IsOpen())
	assert.Nil(t, d.Session())
	assert.False(t, d.Close())

	assert.True(t, d.Open())
	assert.False(t, d.Open())
	assert.True(t, d.IsOpen())
	require.NotNil(t, d.Session())

	assert.True(t, d.Close())
	assert.False(t, d.Close())
	assert.False(t, d.IsOpen())
}

func TestCloseQuiescesEverything(t *testing.T) {
	d, capture := newDialog(t)
	d.Open()
	s := d.Session()

	require.True(t, d.StartListening(context.Background()))
	assert.True(t, s.Status().Capturing)

	// "awesome" raises the celebration flag; the reply stays pending.
	require.True(t, s.Submit("awesome, hi"))
	d.StartListening(context.Background())
	status := s.Status()
	require.True(t, status.Composing)
	require.True(t, status.Celebrating)
	require.True(t, status.Capturing)

	d.Close()

	assert.False(t, capture.isActive())
	assert.Equal(t, conversation.Status{}, s.Status())
	assert.Zero(t, s.Pending())
}

func TestReopenStartsFresh(t *testing.T) {
	d, _ := newDialog(t)
	d.Open()
	d.Submit("hi")
	assert.Len(t, d.Session().Turns(), 2)

	d.Close()
	d.Open()

	turns := d.Session().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, intent.Embedded().Greeting.Opening, turns[0].Text)
}

func TestPointerDismissal(t *testing.T) {
	d, _ := newDialog(t)
	d.Open()

	// Without bounds nothing is outside.
	assert.False(t, d.PointerDown(5000, 5000))
	assert.True(t, d.IsOpen())

	d.SetBounds(Rect{X: 100, Y: 100, W: 300, H: 400})
	assert.False(t, d.PointerDown(150, 200))
	assert.True(t, d.IsOpen())

	assert.True(t, d.PointerDown(10, 10))
	assert.False(t, d.IsOpen())

	// Closed dialogs ignore pointer events.
	assert.False(t, d.PointerDown(10, 10))
}

func TestKeyDismissal(t *testing.T) {
	d, _ := newDialog(t)
	d.Open()

	assert.False(t, d.KeyDown("Enter"))
	assert.True(t, d.IsOpen())
	assert.True(t, d.KeyDown(KeyEscape))
	assert.False(t, d.IsOpen())
	assert.False(t, d.KeyDown(KeyEscape))
}

func TestToggle(t *testing.T) {
	var (
		mu     sync.Mutex
		events []bool
	)
	d := New(func() *conversation.Session {
		return conversation.NewSession(intent.NewEngine(intent.Embedded()), conversation.DefaultConfig(),
			conversation.WithScheduler(heldScheduler{}))
	}, WithVisibilityHook(func(open bool, s *conversation.Session) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, open)
		assert.Equal(t, open, s != nil)
	}))

	d.Toggle()
	assert.True(t, d.IsOpen())
	d.Toggle()
	assert.False(t, d.IsOpen())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, events)
}

func TestClosedDialogRejectsInput(t *testing.T) {
	d, capture := newDialog(t)

	assert.False(t, d.Submit("hello"))
	assert.False(t, d.StartListening(context.Background()))
	d.Clear()
	assert.Zero(t, capture.starts)
}

func TestFinalTranscriptSubmits(t *testing.T) {
	d, _ := newDialog(t)
	d.Open()
	d.StartListening(context.Background())

	d.FinalTranscript("what are her hobbies")

	turns := d.Session().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "what are her hobbies", turns[1].Text)
	assert.False(t, d.Session().Status().Capturing)
}
