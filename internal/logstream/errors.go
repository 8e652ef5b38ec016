package logstream

import (
	"errors"
	"fmt"
)

// Log adapter error types
var (
	ErrMissingToken   = errors.New("log service bearer token is required")
	ErrMissingBaseURL = errors.New("log service base URL is required")
	ErrAuthFailed     = errors.New("log service rejected credentials")
)

// UpstreamError reports a non-2xx response from the log service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("log service returned status %d: %s", e.StatusCode, e.Body)
}
