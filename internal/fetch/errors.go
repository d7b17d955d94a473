package fetch

import (
	"errors"
	"fmt"
	"time"
)

// ErrTooManyRedirects is returned when a download redirects more than MaxRedirects times.
var ErrTooManyRedirects = errors.New("too many redirects")

// HTTPStatusError is a final response with a non-success status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %s", e.URL, e.Status)
}

// TimeoutError means the server did not answer, or stopped sending, within the timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
	Stage   string // "connect" or "read"
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("GET %s: %s timed out after %s", e.URL, e.Stage, e.Timeout)
}

// NetworkError wraps transport and stream failures.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
