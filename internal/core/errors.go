package core

import "errors"

// Error codes for domain errors sent over the realtime channel.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternal       = "internal_error"
)

var (
	// ErrClientClosed is returned for lifecycle events on a closed connection.
	ErrClientClosed = errors.New("client closed")
	// ErrUnknownClient is returned when a connection was never registered with the hub.
	ErrUnknownClient = errors.New("unknown client")
	// ErrInvalidUser is returned when identify carries a non-positive user id.
	ErrInvalidUser = errors.New("invalid user id")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
