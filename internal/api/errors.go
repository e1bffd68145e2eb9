package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FetchError is returned when the API answers with a non-success status.
// It aborts the run: the report is never built from partial data.
type FetchError struct {
	URL         string
	StatusCode  int
	Body        string
	RateLimited bool // 403 with X-RateLimit-Remaining: 0
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("GET %s: API returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated later.
func (e *FetchError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.RateLimited ||
		e.StatusCode >= http.StatusInternalServerError
}

// isRetryable classifies errors from doRequest for the retry loop.
// Transport failures are retryable; context cancellation is not.
func isRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
