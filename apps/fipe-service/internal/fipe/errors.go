package fipe

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps failures to reach the upstream or read its response
	ErrTransport = errors.New("fipe: transport error")
	// ErrDecode is returned when a 2xx body is not valid JSON
	ErrDecode = errors.New("fipe: invalid JSON response")
	// ErrTooLarge is returned when a 2xx body exceeds the read limit
	ErrTooLarge = errors.New("fipe: response body too large")
)

// UpstreamError is a non-2xx response from the FIPE API
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fipe: upstream returned status %d", e.StatusCode)
}

// IsUpstreamStatus reports whether err is an UpstreamError with the given status
func IsUpstreamStatus(err error, status int) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == status
}
