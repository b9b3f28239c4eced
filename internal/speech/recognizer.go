// Package speech turns a continuous recognition capability into
// single-utterance capture attempts with interim and final transcripts.
package speech

import "context"

// Result is one event from a recognition stream. Exactly one of a
// transcript or Err is meaningful.
type Result struct {
	Transcript string
	Final      bool
	Err        *CaptureError
}

// Stream is an open recognition attempt. Results is closed when the
// utterance ends, after an error, or after Stop.
type Stream interface {
	Results() <-chan Result
	// Stop ends the attempt early. It is safe to call more than once.
	Stop() error
}

// Recognizer is the platform recognition capability.
type Recognizer interface {
	// Available reports whether recognition can be used at all.
	Available(ctx context.Context) bool
	Open(ctx context.Context, lang string) (Stream, error)
}

type knownAvailability struct {
	Recognizer
	available bool
}

func (k knownAvailability) Available(context.Context) bool { return k.available }

// WithKnownAvailability wraps rec so Available reports a result measured
// once elsewhere instead of asking the backend again.
func WithKnownAvailability(rec Recognizer, available bool) Recognizer {
	return knownAvailability{Recognizer: rec, available: available}
}
