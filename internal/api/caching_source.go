package api

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/metric"

	"github.com/vilaca/labelage/internal/telemetry"
)

// RecordStore persists record lists by name.
type RecordStore interface {
	Load(name string) ([]json.RawMessage, bool, error)
	Save(ctx context.Context, name string, records []json.RawMessage) error
}

// CachingSource wraps a RecordSource with a persistent store.
// Follows Decorator pattern: a stored entry short-circuits the wrapped source entirely.
type CachingSource struct {
	source RecordSource
	store  RecordStore
	logger Logger
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCachingSource creates a new caching wrapper.
func NewCachingSource(source RecordSource, store RecordStore, logger Logger) *CachingSource {
	m := telemetry.Meter("")
	hits, _ := m.Int64Counter("labelage.cache.hits",
		metric.WithDescription("Record lists served from the file cache"),
	)
	misses, _ := m.Int64Counter("labelage.cache.misses",
		metric.WithDescription("Record lists fetched from the API"),
	)
	return &CachingSource{
		source: source,
		store:  store,
		logger: logger,
		hits:   hits,
		misses: misses,
	}
}

// Records returns the stored list for name, or fetches url and stores the complete result.
func (c *CachingSource) Records(ctx context.Context, url, name string) ([]json.RawMessage, error) {
	records, found, err := c.store.Load(name)
	if err != nil {
		return nil, err
	}
	if found {
		c.hits.Add(ctx, 1)
		c.logger.Printf("[Cache] hit: %s (%d records)", name, len(records))
		return records, nil
	}

	c.misses.Add(ctx, 1)
	c.logger.Printf("[Cache] miss: %s - fetching %s", name, url)
	records, err = c.source.Records(ctx, url, name)
	if err != nil {
		return nil, err
	}

	// Only complete lists reach the store
	if err := c.store.Save(ctx, name, records); err != nil {
		return nil, err
	}

	return records, nil
}
