package waha

import (
	"errors"
	"fmt"
)

// ErrChannelUnavailable marks upstream connectivity failures. Callers may
// retry; nothing in this service retries automatically.
var ErrChannelUnavailable = errors.New("waha unreachable")

// ErrInvalidPhone is returned when a phone number cannot be normalized into
// a chat id.
var ErrInvalidPhone = errors.New("invalid phone number")

// SessionNotActiveError is a precondition failure: the WAHA session is not
// in a sendable state. It carries diagnostics so callers can prompt a
// reconnect instead of treating it as a generic send failure.
type SessionNotActiveError struct {
	State SessionState
}

func (e *SessionNotActiveError) Error() string {
	status := e.State.Status
	if status == "" {
		status = "UNKNOWN"
	}
	return fmt.Sprintf("session not active (status %s): start/restart session and scan QR before sending", status)
}

// APIError is a non-2xx response from WAHA.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("waha API error: status %d: %s", e.StatusCode, e.Body)
}
