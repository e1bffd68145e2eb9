package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vilaca/labelage/internal/domain"
)

// Client defines the interface for issue tracker clients.
// Consumers depend on this interface, not on a concrete platform.
type Client interface {
	// GetIssues returns every issue carrying both tracked labels, in server order.
	GetIssues(ctx context.Context) ([]domain.Issue, error)

	// GetIssueEvents returns the event log of one issue, in server order.
	GetIssueEvents(ctx context.Context, number int) ([]domain.Event, error)
}

// RecordSource returns the full list of raw records behind a paginated URL.
// name identifies the resource for sources that persist it (e.g. "issues.json").
type RecordSource interface {
	Records(ctx context.Context, url, name string) ([]json.RawMessage, error)
}

// ClientConfig holds common configuration for platform clients.
type ClientConfig struct {
	BaseURL string
	Project string   // "owner/repo" for GitHub, numeric ID or "group/project" for GitLab
	Labels  []string // Tracked label pair
	State   string   // "all", "open", "closed"
}

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger interface for logging operations.
type Logger interface {
	Printf(format string, v ...interface{})
}
