package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects controller callbacks.
type recorder struct {
	mu       sync.Mutex
	finals   []string
	errs     []*CaptureError
	states   []bool
	interim  []string
	inactive chan struct{}
}

func newRecorder() *recorder {
	return &recorder{inactive: make(chan struct{}, 16)}
}

func (r *recorder) options() []ControllerOption {
	return []ControllerOption{
		OnFinal(func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.finals = append(r.finals, text)
		}),
		OnError(func(err *CaptureError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		}),
		OnStateChange(func(active bool) {
			r.mu.Lock()
			r.states = append(r.states, active)
			r.mu.Unlock()
			if !active {
				r.inactive <- struct{}{}
			}
		}),
		OnInterim(func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.interim = append(r.interim, text)
		}),
	}
}

func (r *recorder) waitInactive(t *testing.T) {
	t.Helper()
	select {
	case <-r.inactive:
	case <-time.After(2 * time.Second):
		t.Fatal("controller never became inactive")
	}
}

func (r *recorder) snapshot() (finals []string, errs []*CaptureError, states []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.finals...), append([]*CaptureError(nil), r.errs...), append([]bool(nil), r.states...)
}

func newRelayController(t *testing.T, rec *recorder) (*Controller, *RelayRecognizer, *commandLog) {
	t.Helper()
	cmds := &commandLog{}
	relay := NewRelayRecognizer(true, cmds.add, nil)
	c := NewController(context.Background(), relay, rec.options()...)
	t.Cleanup(c.Close)
	return c, relay, cmds
}

type commandLog struct {
	mu   sync.Mutex
	cmds []RelayCommand
}

func (l *commandLog) add(cmd RelayCommand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
}

func (l *commandLog) actions() []RelayAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]RelayAction, 0, len(l.cmds))
	for _, c := range l.cmds {
		out = append(out, c.Action)
	}
	return out
}

func TestUnsupportedControllerIsInert(t *testing.T) {
	rec := newRecorder()
	for _, r := range []Recognizer{nil, NewRelayRecognizer(false, nil, nil)} {
		c := NewController(context.Background(), r, rec.options()...)
		assert.False(t, c.Supported())
		c.Start(context.Background())
		assert.False(t, c.Capturing())
		c.Stop()
		c.Close()
	}
	_, _, states := rec.snapshot()
	assert.Empty(t, states)
}

// checkCounter counts availability checks against the relay it wraps.
type checkCounter struct {
	*RelayRecognizer
	checks atomic.Int32
}

func (p *checkCounter) Available(ctx context.Context) bool {
	p.checks.Add(1)
	return p.RelayRecognizer.Available(ctx)
}

func TestKnownAvailabilitySkipsCheck(t *testing.T) {
	cmds := &commandLog{}
	backend := &checkCounter{RelayRecognizer: NewRelayRecognizer(true, cmds.add, nil)}
	shared := WithKnownAvailability(backend, true)

	for range 3 {
		c := NewController(context.Background(), shared)
		assert.True(t, c.Supported())
		c.Close()
	}
	assert.Zero(t, backend.checks.Load())

	c := NewController(context.Background(), shared)
	t.Cleanup(c.Close)
	c.Start(context.Background())
	assert.True(t, c.Capturing())
	assert.Equal(t, []RelayAction{RelayStart}, cmds.actions())

	off := NewController(context.Background(), WithKnownAvailability(backend, false))
	assert.False(t, off.Supported())
	off.Close()
	assert.Zero(t, backend.checks.Load())
}

func TestFinalTranscriptInvokesCallback(t *testing.T) {
	rec := newRecorder()
	c, relay, cmds := newRelayController(t, rec)

	c.Start(context.Background())
	require.True(t, c.Capturing())
	assert.Equal(t, []RelayAction{RelayStart}, cmds.actions())

	relay.Push("what are her", false)
	relay.Push("what are her skills", true)
	rec.waitInactive(t)

	finals, errs, states := rec.snapshot()
	assert.Equal(t, []string{"what are her skills"}, finals)
	assert.Empty(t, errs)
	assert.Equal(t, []bool{true, false}, states)
	assert.False(t, c.Capturing())
	assert.Empty(t, c.Interim())

	// Ready for another attempt.
	c.Start(context.Background())
	assert.True(t, c.Capturing())
}

func TestInterimUpdatesTranscript(t *testing.T) {
	rec := newRecorder()
	c, relay, _ := newRelayController(t, rec)

	c.Start(context.Background())
	relay.Push("tell me", false)
	relay.Push("tell me about", false)

	require.Eventually(t, func() bool { return c.Interim() == "tell me about" }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.Capturing())
}

func TestPermissionDenied(t *testing.T) {
	rec := newRecorder()
	c, relay, _ := newRelayController(t, rec)

	c.Start(context.Background())
	relay.Push("hel", false)
	relay.Fail("not-allowed")
	rec.waitInactive(t)

	finals, errs, _ := rec.snapshot()
	assert.Empty(t, finals)
	require.Len(t, errs, 1)
	assert.Equal(t, CodePermissionDenied, errs[0].Code)
	assert.ErrorIs(t, errs[0], ErrPermissionDenied)
	assert.False(t, c.Capturing())
	assert.Empty(t, c.Interim())
}

func TestEndWithoutFinal(t *testing.T) {
	rec := newRecorder()
	c, relay, _ := newRelayController(t, rec)

	c.Start(context.Background())
	relay.Push("um", false)
	relay.End()
	rec.waitInactive(t)

	finals, errs, _ := rec.snapshot()
	assert.Empty(t, finals)
	assert.Empty(t, errs)
	assert.False(t, c.Capturing())
}

func TestNoSpeechEndsQuietly(t *testing.T) {
	rec := newRecorder()
	c, relay, _ := newRelayController(t, rec)

	c.Start(context.Background())
	relay.Fail("no-speech")
	rec.waitInactive(t)

	_, errs, _ := rec.snapshot()
	assert.Empty(t, errs)
}

func TestStopIsSafe(t *testing.T) {
	rec := newRecorder()
	c, relay, cmds := newRelayController(t, rec)

	c.Stop()
	c.Start(context.Background())
	c.Start(context.Background())
	c.Stop()
	c.Stop()

	assert.False(t, c.Capturing())
	assert.Equal(t, []RelayAction{RelayStart, RelayStop}, cmds.actions())

	// Events for the stopped attempt are ignored.
	relay.Push("late", true)
	finals, _, states := rec.snapshot()
	assert.Empty(t, finals)
	assert.Equal(t, []bool{true, false}, states)
}

func TestOpenFailureReported(t *testing.T) {
	rec := newRecorder()
	c := NewController(context.Background(), failingRecognizer{err: errors.New("boom")}, rec.options()...)
	defer c.Close()

	c.Start(context.Background())
	rec.waitInactive(t)

	_, errs, _ := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknown)
	assert.False(t, c.Capturing())
}

type failingRecognizer struct{ err error }

func (failingRecognizer) Available(context.Context) bool { return true }

func (f failingRecognizer) Open(context.Context, string) (Stream, error) { return nil, f.err }

func TestParseCode(t *testing.T) {
	tests := map[string]ErrorCode{
		"not-allowed":            CodePermissionDenied,
		"service-not-allowed":    CodePermissionDenied,
		"PERMISSION_DENIED":      CodePermissionDenied,
		"network":                CodeNetwork,
		"NETWORK_ERROR":          CodeNetwork,
		"audio-capture":          CodeNoInputDevice,
		"NO_INPUT_DEVICE":        CodeNoInputDevice,
		"language-not-supported": CodeUnknown,
		"":                       CodeUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCode(in), "input %q", in)
	}
}

func TestCaptureErrorMatching(t *testing.T) {
	err := NewCaptureError(CodeNetwork, errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrUnknown)
	assert.Contains(t, err.Error(), "NETWORK_ERROR")

	var ce *CaptureError
	require.ErrorAs(t, error(err), &ce)
	assert.Equal(t, CodeNetwork, ce.Code)
}
