// Package dialog controls the visibility of the assistant dialog and owns
// the conversation shown inside it.
package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
)

// KeyEscape is the key that dismisses an open dialog.
const KeyEscape = "Escape"

// Rect is the dialog's bounding box in page coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether the point lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Capture is the speech capture driven from the dialog.
type Capture interface {
	Start(ctx context.Context)
	Stop()
}

// SessionFactory creates the conversation shown when the dialog opens.
type SessionFactory func() *conversation.Session

// Option configures a Controller.
type Option func(*Controller)

// WithCapture sets the speech capture quiesced on close.
func WithCapture(c Capture) Option {
	return func(d *Controller) {
		d.capture = c
	}
}

// WithVisibilityHook registers a callback run after the dialog opens or
// closes. s is the new session on open and nil on close. The hook runs
// without the controller lock held.
func WithVisibilityHook(fn func(open bool, s *conversation.Session)) Option {
	return func(d *Controller) {
		d.onChange = fn
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Controller) {
		d.logger = l
	}
}

// Controller is the open/closed state machine for one visitor's dialog.
type Controller struct {
	newSession SessionFactory
	capture    Capture
	onChange   func(bool, *conversation.Session)
	logger     *slog.Logger

	mu      sync.Mutex
	open    bool
	bounds  Rect
	session *conversation.Session
}

// New creates a closed dialog.
func New(factory SessionFactory, opts ...Option) *Controller {
	d := &Controller{newSession: factory}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Open shows the dialog with a new conversation. It reports false if the
// dialog was already open.
func (d *Controller) Open() bool {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		return false
	}
	d.open = true
	d.session = d.newSession()
	s := d.session
	d.mu.Unlock()

	d.logger.Debug("[DIALOG] Opened")
	if d.onChange != nil {
		d.onChange(true, s)
	}
	return true
}

// Close stops capture, quiesces the conversation and hides the dialog. It
// reports false if the dialog was already closed.
func (d *Controller) Close() bool {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return false
	}
	d.open = false
	s := d.session
	d.session = nil
	d.mu.Unlock()

	// Capture and session call back into the dialog, so quiesce them
	// unlocked.
	if d.capture != nil {
		d.capture.Stop()
	}
	if s != nil {
		s.Close()
	}

	d.logger.Debug("[DIALOG] Closed")
	if d.onChange != nil {
		d.onChange(false, nil)
	}
	return true
}

// Toggle opens a closed dialog and closes an open one.
func (d *Controller) Toggle() {
	if d.IsOpen() {
		d.Close()
		return
	}
	d.Open()
}

// IsOpen reports whether the dialog is visible.
func (d *Controller) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// SetBounds records where the dialog is drawn.
func (d *Controller) SetBounds(r Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bounds = r
}

// PointerDown dismisses the dialog when the pointer lands outside it. Until
// bounds are known every pointer event is treated as inside. It reports
// whether the dialog was dismissed.
func (d *Controller) PointerDown(x, y float64) bool {
	d.mu.Lock()
	outside := d.open && !d.bounds.Empty() && !d.bounds.Contains(x, y)
	d.mu.Unlock()

	if !outside {
		return false
	}
	return d.Close()
}

// KeyDown dismisses the dialog on the cancel key.
func (d *Controller) KeyDown(key string) bool {
	if key != KeyEscape || !d.IsOpen() {
		return false
	}
	return d.Close()
}

// Session returns the conversation shown in the dialog, or nil when closed.
func (d *Controller) Session() *conversation.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Submit sends text to the open conversation.
func (d *Controller) Submit(text string) bool {
	s := d.Session()
	if s == nil {
		return false
	}
	return s.Submit(text)
}

// Clear restarts the open conversation.
func (d *Controller) Clear() {
	if s := d.Session(); s != nil {
		s.Clear()
	}
}

// StartListening begins speech capture while the dialog is open.
func (d *Controller) StartListening(ctx context.Context) bool {
	if d.capture == nil || !d.IsOpen() {
		return false
	}
	d.capture.Start(ctx)
	return true
}

// StopListening ends speech capture.
func (d *Controller) StopListening() {
	if d.capture != nil {
		d.capture.Stop()
	}
}

// CaptureChanged mirrors the capture state into the open conversation.
func (d *Controller) CaptureChanged(active bool) {
	if s := d.Session(); s != nil {
		s.SetCapturing(active)
	}
}

// FinalTranscript submits a settled speech transcript.
func (d *Controller) FinalTranscript(text string) {
	d.Submit(text)
}
