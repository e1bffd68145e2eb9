package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/labelage/internal/api"
	"github.com/vilaca/labelage/internal/domain"
)

// stubSource is a test double for api.RecordSource keyed by cache name.
type stubSource struct {
	byName map[string]string
	urls   map[string]string
	err    error
}

func (s *stubSource) Records(ctx context.Context, u, name string) ([]json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.urls == nil {
		s.urls = make(map[string]string)
	}
	s.urls[name] = u
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(s.byName[name]), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func newTestClient(source api.RecordSource) *Client {
	return NewClient(api.ClientConfig{
		Project: "rust-lang/rust",
		Labels:  []string{"T-libs", "B-unstable"},
	}, source)
}

// TestIssuesURL tests that the issues query filters on both labels and all states.
func TestIssuesURL(t *testing.T) {
	// Arrange
	client := newTestClient(&stubSource{})

	// Act
	u, err := url.Parse(client.IssuesURL())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "api.github.com", u.Host)
	assert.Equal(t, "/repos/rust-lang/rust/issues", u.Path)
	assert.Equal(t, "all", u.Query().Get("state"))
	assert.Equal(t, "T-libs,B-unstable", u.Query().Get("labels"))
	assert.Equal(t, "100", u.Query().Get("per_page"))
}

func TestEventsURL(t *testing.T) {
	client := NewClient(api.ClientConfig{BaseURL: "https://ghe.example.com/api/v3/", Project: "o/r"}, &stubSource{})

	assert.Equal(t, "https://ghe.example.com/api/v3/repos/o/r/issues/42/events?per_page=100", client.EventsURL(42))
}

// TestGetIssues tests decoding issue records.
func TestGetIssues(t *testing.T) {
	// Arrange
	source := &stubSource{byName: map[string]string{
		"issues.json": `[
			{"number": 27, "title": "Tracking issue", "state": "open",
			 "labels": [{"name": "T-libs"}, {"name": "B-unstable"}],
			 "created_at": "2015-01-02T03:04:05Z", "html_url": "https://github.com/rust-lang/rust/issues/27"}
		]`,
	}}
	client := newTestClient(source)

	// Act
	issues, err := client.GetIssues(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 27, issues[0].Number)
	assert.Equal(t, []string{"T-libs", "B-unstable"}, issues[0].Labels)
	assert.Equal(t, time.Date(2015, 1, 2, 3, 4, 5, 0, time.UTC), issues[0].CreatedAt.UTC())
	assert.Equal(t, client.IssuesURL(), source.urls["issues.json"])
}

// TestGetIssueEvents tests decoding event records, including unknown kinds.
func TestGetIssueEvents(t *testing.T) {
	// Arrange
	source := &stubSource{byName: map[string]string{
		"27-events.json": `[
			{"event": "labeled", "label": {"name": "T-libs"}, "created_at": "2015-01-03T00:00:00Z"},
			{"event": "subscribed", "created_at": "2015-01-03T01:00:00Z"},
			{"event": "closed", "created_at": "2015-02-01T00:00:00Z"}
		]`,
	}}
	client := newTestClient(source)

	// Act
	events, err := client.GetIssueEvents(context.Background(), 27)

	// Assert
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventLabeled, events[0].Kind)
	assert.Equal(t, "T-libs", events[0].Label)
	assert.Equal(t, 27, events[0].IssueNumber)
	assert.Equal(t, domain.EventKind("subscribed"), events[1].Kind)
	assert.Empty(t, events[1].Label)
	assert.Equal(t, domain.EventClosed, events[2].Kind)
	assert.Equal(t, client.EventsURL(27), source.urls["27-events.json"])
}

// TestGetIssues_SourceError tests that fetch errors are wrapped, not swallowed.
func TestGetIssues_SourceError(t *testing.T) {
	fetchErr := &api.FetchError{URL: "https://api.github.com/x", StatusCode: 401, Body: "Bad credentials"}
	client := newTestClient(&stubSource{err: fetchErr})

	issues, err := client.GetIssues(context.Background())

	assert.Nil(t, issues)
	var fe *api.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 401, fe.StatusCode)
}

func TestDecorateRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com", nil)
	DecorateRequest(req, "")
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", req.Header.Get("Accept"))

	DecorateRequest(req, "tok")
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}
