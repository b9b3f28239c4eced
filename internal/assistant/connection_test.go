package assistant

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/intent"
	"github.com/ashureev/portfolio-assistant/internal/speech"
)

// newBareConnection builds a connection without a socket; frames stay in
// the outbound buffer for inspection.
func newBareConnection(t *testing.T, src SpeechSource) *connection {
	t.Helper()
	h := NewHandler(HandlerConfig{
		Engine: intent.NewEngine(intent.Embedded()),
		Conversation: conversation.Config{
			ThinkMin:       time.Millisecond,
			ThinkMax:       2 * time.Millisecond,
			CelebrationTTL: time.Second,
		},
		Speech: src,
	})
	c := newConnection(context.Background(), h.cfg, nil, true, h.logger)
	t.Cleanup(c.shutdown)
	return c
}

func drain(c *connection) []serverFrame {
	var frames []serverFrame
	for {
		select {
		case f := <-c.out:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestPermissionDeniedLeavesHistoryUnchanged(t *testing.T) {
	c := newBareConnection(t, RelaySpeech(nil))
	ctx := context.Background()

	c.dispatch(ctx, clientFrame{Type: frameOpen})
	s := c.dialog.Session()
	require.NotNil(t, s)
	before := s.Turns()
	require.NotEmpty(t, before)

	c.dispatch(ctx, clientFrame{Type: frameListenStart})
	require.True(t, c.speech.Capturing())

	c.dispatch(ctx, clientFrame{Type: frameSpeechError, Code: "not-allowed"})
	assert.Eventually(t, func() bool { return !c.speech.Capturing() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !s.Status().Capturing }, time.Second, 5*time.Millisecond)

	assert.Equal(t, before, s.Turns())
	assert.Same(t, s, c.dialog.Session())

	var denied bool
	for _, f := range drain(c) {
		assert.NotEqual(t, frameTurn, f.Type)
		if f.Type == frameCaptureError {
			assert.Equal(t, string(speech.CodePermissionDenied), f.Code)
			denied = true
		}
	}
	assert.True(t, denied)
}

// availabilityCounter is a shared recognizer that records every availability check.
type availabilityCounter struct {
	checks atomic.Int32
}

func (a *availabilityCounter) Available(context.Context) bool {
	a.checks.Add(1)
	return true
}

func (a *availabilityCounter) Open(context.Context, string) (speech.Stream, error) {
	return nil, speech.NewCaptureError(speech.CodeUnknown, context.Canceled)
}

func TestSharedSpeechNotCheckedPerConnection(t *testing.T) {
	rec := &availabilityCounter{}
	src := SharedSpeech(rec, true)

	for range 3 {
		c := newBareConnection(t, src)
		assert.True(t, c.speech.Supported())
	}
	assert.Zero(t, rec.checks.Load())

	c := newBareConnection(t, SharedSpeech(rec, false))
	assert.False(t, c.speech.Supported())
	assert.Zero(t, rec.checks.Load())
}
