package scraper

import (
	"errors"
	"fmt"
)

// ErrorKind groups request failures for retry decisions and metrics labels.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server_error"
)

// RequestError is a classified failure of a search page request.
type RequestError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *RequestError) Retryable() bool {
	switch e.Kind {
	case KindForbidden, KindNotFound:
		return false
	default:
		return true
	}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return string(reqErr.Kind)
	}
	return "other"
}
