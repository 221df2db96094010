package api

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the server cannot be reached at the
// transport level (connection refused, DNS failure, timeout). Callers use it
// to decide the offline fallback.
var ErrUnavailable = errors.New("server unavailable")

// Error is a non-2xx HTTP response from the server.
type Error struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}
