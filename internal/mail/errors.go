package mail

import (
	"errors"
	"fmt"
)

// Kind classifies a failed delivery.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindConfiguration Kind = "configuration"
	KindRejected      Kind = "rejected"
)

// Sentinels matched by errors.Is against a *SendError.
var (
	ErrNetwork        = errors.New("mail service unreachable")
	ErrConfiguration  = errors.New("mail service misconfigured")
	ErrRejected       = errors.New("mail service rejected the message")
	ErrInvalidMessage = errors.New("invalid message")
)

// SendError is returned by Send when the message was not delivered.
type SendError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send mail (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send mail (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *SendError) Is(target error) bool {
	switch e.Kind {
	case KindNetwork:
		return target == ErrNetwork
	case KindConfiguration:
		return target == ErrConfiguration
	case KindRejected:
		return target == ErrRejected
	}
	return false
}

// KindOf returns the failure kind of err, or "" if err is not a SendError.
func KindOf(err error) Kind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
