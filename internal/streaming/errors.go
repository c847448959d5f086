package streaming

import (
	"errors"
	"strings"
)

// ErrorCode classifies a StreamError for callers that map failures onto
// protocol or HTTP statuses.
type ErrorCode string

const (
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionActive   ErrorCode = "SESSION_ACTIVE"
	ErrCodeTooManyStreams  ErrorCode = "TOO_MANY_STREAMS"
	ErrCodeInvalidSRTP     ErrorCode = "INVALID_SRTP"
	ErrCodePortAllocation  ErrorCode = "PORT_ALLOCATION"
	ErrCodeSocket          ErrorCode = "SOCKET_ERROR"
)

// Sentinels wrapped by StreamError, for use with errors.Is.
var (
	ErrSessionNotFound = errors.New("error finding session information")
	ErrSessionActive   = errors.New("session is already streaming")
	ErrTooManyStreams  = errors.New("maximum number of streams reached")
	ErrInvalidSRTP     = errors.New("invalid SRTP parameters")
)

// StreamError is a session failure carrying a code, a short context and
// the underlying cause.
type StreamError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewStreamError creates a StreamError.
func NewStreamError(code ErrorCode, message string, cause error) *StreamError {
	return &StreamError{Code: code, Message: message, Cause: cause}
}

func (e *StreamError) Error() string {
	parts := []string{string(e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *StreamError) Unwrap() error { return e.Cause }
