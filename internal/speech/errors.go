package speech

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a failed capture attempt.
type ErrorCode string

const (
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeNetwork          ErrorCode = "NETWORK_ERROR"
	CodeNoInputDevice    ErrorCode = "NO_INPUT_DEVICE"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinels matched by errors.Is against a *CaptureError.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNetwork          = errors.New("speech service unreachable")
	ErrNoInputDevice    = errors.New("no audio input device")
	ErrUnknown          = errors.New("speech recognition failed")
)

func (c ErrorCode) sentinel() error {
	switch c {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeNetwork:
		return ErrNetwork
	case CodeNoInputDevice:
		return ErrNoInputDevice
	default:
		return ErrUnknown
	}
}

// ParseCode maps a canonical code or a Web Speech API error name onto the
// taxonomy. Anything unrecognised is CodeUnknown.
func ParseCode(s string) ErrorCode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permission_denied", "not-allowed", "service-not-allowed":
		return CodePermissionDenied
	case "network_error", "network":
		return CodeNetwork
	case "no_input_device", "audio-capture":
		return CodeNoInputDevice
	default:
		return CodeUnknown
	}
}

// IsEndOfUtterance reports whether a Web Speech API error name only means
// the visitor stopped talking without a usable result.
func IsEndOfUtterance(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "no-speech", "aborted":
		return true
	}
	return false
}

// CaptureError is reported when one capture attempt fails. It is never
// fatal; the controller is ready to start again.
type CaptureError struct {
	Code ErrorCode
	Err  error
}

// NewCaptureError wraps cause under code. cause may be nil.
func NewCaptureError(code ErrorCode, cause error) *CaptureError {
	return &CaptureError{Code: code, Err: cause}
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech capture %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("speech capture %s", e.Code)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Code.
func (e *CaptureError) Is(target error) bool {
	return target == e.Code.sentinel()
}
