package api

import (
	"context"
)

const (
	// MaxConcurrentRequests limits concurrent API requests to avoid overwhelming the API
	MaxConcurrentRequests = 5
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 100
	// MaxPages stops pagination on malformed Link headers that never run out
	MaxPages = 1000
)

// BaseClient contains common fields and functionality for all API clients.
type BaseClient struct {
	BaseURL    string
	Token      string
	HTTPClient HTTPClient
	Semaphore  chan struct{} // Limits concurrent requests
}

// NewBaseClient creates a new base client with rate limiting.
func NewBaseClient(baseURL, token string, httpClient HTTPClient) *BaseClient {
	return &BaseClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: httpClient,
		Semaphore:  make(chan struct{}, MaxConcurrentRequests),
	}
}

// DoRateLimited performs an operation with rate limiting via semaphore.
func (c *BaseClient) DoRateLimited(ctx context.Context, fn func() error) error {
	select {
	case c.Semaphore <- struct{}{}:
		defer func() { <-c.Semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	return fn()
}
