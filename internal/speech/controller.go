package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "en-US"

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLanguage sets the recognition language.
func WithLanguage(lang string) ControllerOption {
	return func(c *Controller) {
		if lang != "" {
			c.lang = lang
		}
	}
}

// OnFinal registers the completion callback invoked with each final
// transcript.
func OnFinal(fn func(text string)) ControllerOption {
	return func(c *Controller) {
		c.onFinal = fn
	}
}

// OnError registers the callback invoked when a capture attempt fails.
func OnError(fn func(*CaptureError)) ControllerOption {
	return func(c *Controller) {
		c.onError = fn
	}
}

// OnStateChange registers the callback invoked when capture becomes active
// or inactive.
func OnStateChange(fn func(active bool)) ControllerOption {
	return func(c *Controller) {
		c.onState = fn
	}
}

// OnInterim registers the callback invoked with each partial hypothesis.
func OnInterim(fn func(text string)) ControllerOption {
	return func(c *Controller) {
		c.onInterim = fn
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller runs one capture attempt at a time. Callbacks are invoked
// without the controller lock held and may call back into the controller.
type Controller struct {
	rec       Recognizer
	lang      string
	supported bool
	logger    *slog.Logger

	onFinal   func(string)
	onError   func(*CaptureError)
	onState   func(bool)
	onInterim func(string)

	mu      sync.Mutex
	active  bool
	interim string
	gen     uint64
	stream  Stream
	closed  bool
	pumps   sync.WaitGroup
}

// NewController checks rec once; a nil or unavailable recognizer leaves
// the controller permanently unsupported.
func NewController(ctx context.Context, rec Recognizer, opts ...ControllerOption) *Controller {
	c := &Controller{
		rec:  rec,
		lang: DefaultLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.supported = rec != nil && rec.Available(ctx)
	return c
}

// Supported reports whether speech capture can be used.
func (c *Controller) Supported() bool {
	return c.supported
}

// Capturing reports whether a capture attempt is active.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Interim returns the current partial transcript.
func (c *Controller) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Start begins a capture attempt. It does nothing when unsupported or
// already active. A recognizer that fails to open is reported through the
// error callback.
func (c *Controller) Start(ctx context.Context) {
	if !c.supported {
		return
	}

	c.mu.Lock()
	if c.active || c.closed {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.interim = ""
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.notifyState(true)

	stream, err := c.rec.Open(ctx, c.lang)
	if err != nil {
		var ce *CaptureError
		if !errors.As(err, &ce) {
			ce = NewCaptureError(CodeUnknown, err)
		}
		c.logger.Warn("[SPEECH] Failed to open recognition stream", "error", err)
		if c.finish(gen) {
			c.notifyError(ce)
			c.notifyState(false)
		}
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Stopped while the stream was opening.
		c.pumps.Add(1)
		c.mu.Unlock()
		_ = stream.Stop()
		go c.drain(stream)
		return
	}
	c.stream = stream
	c.pumps.Add(1)
	c.mu.Unlock()

	go c.pump(gen, stream)
}

// Stop ends the active capture attempt without a final result. It is safe
// to call when inactive.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.interim = ""
	c.gen++
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			c.logger.Debug("[SPEECH] Stream stop failed", "error", err)
		}
	}
	c.notifyState(false)
}

// Close stops capture and waits for stream readers to exit. The controller
// cannot be started again. Close must not be called from a callback.
func (c *Controller) Close() {
	c.Stop()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.pumps.Wait()
}

func (c *Controller) pump(gen uint64, stream Stream) {
	defer c.pumps.Done()

	for res := range stream.Results() {
		switch {
		case res.Err != nil:
			if !c.finish(gen) {
				continue
			}
			_ = stream.Stop()
			c.logger.Info("[SPEECH] Capture failed", "code", res.Err.Code)
			c.notifyError(res.Err)
			c.notifyState(false)

		case res.Final:
			if !c.finish(gen) {
				continue
			}
			_ = stream.Stop()
			if c.onFinal != nil && res.Transcript != "" {
				c.onFinal(res.Transcript)
			}
			c.notifyState(false)

		default:
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				continue
			}
			c.interim = res.Transcript
			c.mu.Unlock()
			if c.onInterim != nil {
				c.onInterim(res.Transcript)
			}
		}
	}

	// Utterance ended without a final result.
	if c.finish(gen) {
		c.notifyState(false)
	}
}

// finish returns the controller to inactive if gen is still current.
func (c *Controller) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.active {
		return false
	}
	c.active = false
	c.interim = ""
	c.gen++
	c.stream = nil
	return true
}

func (c *Controller) drain(stream Stream) {
	defer c.pumps.Done()
	for range stream.Results() {
	}
}

func (c *Controller) notifyState(active bool) {
	if c.onState != nil {
		c.onState(active)
	}
}

func (c *Controller) notifyError(err *CaptureError) {
	if c.onError != nil {
		c.onError(err)
	}
}
