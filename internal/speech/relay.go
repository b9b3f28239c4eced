package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrRelayBusy is returned when a relay stream is opened while another is
// still live.
var ErrRelayBusy = errors.New("relay recognizer already has an open stream")

// RelayAction is an instruction sent to the browser running recognition.
type RelayAction string

const (
	RelayStart RelayAction = "start"
	RelayStop  RelayAction = "stop"
)

// RelayCommand asks the browser to start or stop recognition.
type RelayCommand struct {
	Action RelayAction `json:"action"`
	Lang   string      `json:"lang,omitempty"`
}

const relayBuffer = 64

// RelayRecognizer is backed by the visitor's browser: the page runs the
// Web Speech API and relays its events over the assistant connection. One
// relay serves one connection.
type RelayRecognizer struct {
	available bool
	notify    func(RelayCommand)
	logger    *slog.Logger

	mu      sync.Mutex
	current *relayStream
}

// NewRelayRecognizer creates a relay. available is what the browser
// reported when it connected; notify delivers commands to it.
func NewRelayRecognizer(available bool, notify func(RelayCommand), logger *slog.Logger) *RelayRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayRecognizer{available: available, notify: notify, logger: logger}
}

// Available reports the browser capability.
func (r *RelayRecognizer) Available(context.Context) bool {
	return r.available
}

// Open asks the browser to start listening.
func (r *RelayRecognizer) Open(_ context.Context, lang string) (Stream, error) {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return nil, ErrRelayBusy
	}
	s := &relayStream{owner: r, ch: make(chan Result, relayBuffer)}
	r.current = s
	r.mu.Unlock()

	r.send(RelayCommand{Action: RelayStart, Lang: lang})
	return s, nil
}

// Push feeds a transcript from the browser into the open stream.
func (r *RelayRecognizer) Push(transcript string, final bool) {
	if s := r.stream(); s != nil {
		s.deliver(Result{Transcript: transcript, Final: final})
	}
}

// Fail reports a browser recognition error. Errors that only mean the
// visitor said nothing end the stream quietly.
func (r *RelayRecognizer) Fail(name string) {
	s := r.stream()
	if s == nil {
		return
	}
	if IsEndOfUtterance(name) {
		s.end()
		return
	}
	s.deliver(Result{Err: NewCaptureError(ParseCode(name), errors.New(name))})
}

// End reports that the browser stopped listening.
func (r *RelayRecognizer) End() {
	if s := r.stream(); s != nil {
		s.end()
	}
}

func (r *RelayRecognizer) stream() *relayStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *RelayRecognizer) release(s *relayStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == s {
		r.current = nil
	}
}

func (r *RelayRecognizer) send(cmd RelayCommand) {
	if r.notify != nil {
		r.notify(cmd)
	}
}

type relayStream struct {
	owner *RelayRecognizer

	mu     sync.Mutex
	ch     chan Result
	closed bool
}

func (s *relayStream) Results() <-chan Result {
	return s.ch
}

// Stop tells the browser to stop listening and closes the stream.
func (s *relayStream) Stop() error {
	if s.end() {
		s.owner.send(RelayCommand{Action: RelayStop})
	}
	return nil
}

func (s *relayStream) deliver(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- res:
	default:
		s.owner.logger.Warn("[SPEECH] Relay buffer full, dropping result", "final", res.Final)
	}
}

// end closes the stream once and reports whether this call closed it.
func (s *relayStream) end() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.owner.release(s)
	return true
}
