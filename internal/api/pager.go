package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vilaca/labelage/internal/telemetry"
)

const (
	// maxResponseSize caps a single page body.
	maxResponseSize = 50 * 1024 * 1024

	// retryMaxInterval caps the wait between two attempts.
	retryMaxInterval = 30 * time.Second
)

// RequestDecorator adds platform headers (auth, API version) to a request.
type RequestDecorator func(req *http.Request, token string)

// PagerConfig configures a Pager.
type PagerConfig struct {
	Decorate RequestDecorator
	// MaxRetries is the number of extra attempts for retryable failures.
	// Zero means any failure is returned immediately.
	MaxRetries int
	Logger     Logger
}

// Pager fetches every page of a collection endpoint by following Link headers.
// It implements RecordSource against the network and ignores the record name.
type Pager struct {
	*BaseClient
	decorate   RequestDecorator
	maxRetries int
	logger     Logger
	requests   metric.Int64Counter
	newBackOff func() backoff.BackOff
}

// NewPager creates a new pager on top of a base client.
func NewPager(base *BaseClient, cfg PagerConfig) *Pager {
	requests, _ := telemetry.Meter("").Int64Counter("labelage.http.requests",
		metric.WithDescription("API requests issued, by status code"),
	)
	return &Pager{
		BaseClient: base,
		decorate:   cfg.Decorate,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		requests:   requests,
		newBackOff: func() backoff.BackOff {
			// BackOff implementations are stateful; always return a fresh instance.
			bo := backoff.NewExponentialBackOff()
			bo.MaxInterval = retryMaxInterval
			return bo
		},
	}
}

// Records fetches url and every following "next" page, concatenated in server order.
func (p *Pager) Records(ctx context.Context, url, _ string) ([]json.RawMessage, error) {
	all := []json.RawMessage{}
	next := url

	for page := 1; next != ""; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded for %s: stopped after %d pages", url, MaxPages)
		}

		body, headers, err := p.get(ctx, next)
		if err != nil {
			return nil, err
		}

		var records []json.RawMessage
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode page %d of %s: %w", page, url, err)
		}
		all = append(all, records...)
		p.logger.Printf("[Fetch] %s page %d: %d records", next, page, len(records))

		next, _ = NextPageURL(headers)
	}

	return all, nil
}

// get performs one GET, retrying retryable failures when MaxRetries > 0.
func (p *Pager) get(ctx context.Context, url string) ([]byte, http.Header, error) {
	if p.maxRetries <= 0 {
		return p.doRequest(ctx, url)
	}

	var body []byte
	var headers http.Header
	attempt := 0
	op := func() error {
		attempt++
		b, h, err := p.doRequest(ctx, url)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			p.logger.Printf("[Fetch] attempt %d/%d for %s failed: %v", attempt, p.maxRetries+1, url, err)
			return err
		}
		body, headers = b, h
		return nil
	}

	bo := backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxRetries))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, nil, err
	}
	return body, headers, nil
}

// doRequest performs a single rate-limited GET.
func (p *Pager) doRequest(ctx context.Context, url string) ([]byte, http.Header, error) {
	var body []byte
	var headers http.Header

	err := p.DoRateLimited(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if p.decorate != nil {
			p.decorate(req, p.Token)
		}

		resp, err := p.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request to %s failed: %w", url, err)
		}
		defer resp.Body.Close()

		p.requests.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", resp.StatusCode)))

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read response from %s: %w", url, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &FetchError{
				URL:         url,
				StatusCode:  resp.StatusCode,
				Body:        string(b),
				RateLimited: resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0",
			}
		}

		body, headers = b, resp.Header
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return body, headers, nil
}
