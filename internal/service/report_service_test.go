package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/labelage/internal/api"
	"github.com/vilaca/labelage/internal/api/github"
	"github.com/vilaca/labelage/internal/cache"
	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/report"
	"github.com/vilaca/labelage/internal/timeline"
)

// mockClient is a test double for api.Client.
// Follows FIRST principles - Independent tests.
type mockClient struct {
	getIssuesFunc      func(ctx context.Context) ([]domain.Issue, error)
	getIssueEventsFunc func(ctx context.Context, number int) ([]domain.Event, error)
}

func (m *mockClient) GetIssues(ctx context.Context) ([]domain.Issue, error) {
	if m.getIssuesFunc != nil {
		return m.getIssuesFunc(ctx)
	}
	return nil, nil
}

func (m *mockClient) GetIssueEvents(ctx context.Context, number int) ([]domain.Event, error) {
	if m.getIssueEventsFunc != nil {
		return m.getIssueEventsFunc(ctx, number)
	}
	return nil, nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

var trackedLabels = []string{"T-libs", "B-unstable"}

func noon(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 12, 0, 0, 0, time.UTC)
}

func newService(client api.Client, concurrency int) *ReportService {
	return NewReportService(client, Options{
		Labels:       trackedLabels,
		ReopenPolicy: timeline.ReopenAlways,
		Concurrency:  concurrency,
	}, nopLogger{})
}

// TestBuild tests a two-issue run end to end over a mocked client.
func TestBuild(t *testing.T) {
	// Arrange
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) {
			return []domain.Issue{
				{Number: 2, CreatedAt: noon(time.January, 5)},
				{Number: 1, CreatedAt: noon(time.January, 1)},
			}, nil
		},
		getIssueEventsFunc: func(ctx context.Context, number int) ([]domain.Event, error) {
			switch number {
			case 1:
				return []domain.Event{
					{Kind: domain.EventLabeled, Label: "T-libs", CreatedAt: noon(time.January, 10)},
					{Kind: domain.EventLabeled, Label: "B-unstable", CreatedAt: noon(time.January, 10)},
					{Kind: domain.EventClosed, CreatedAt: noon(time.January, 13)},
				}, nil
			case 2:
				return []domain.Event{
					{Kind: "mentioned", CreatedAt: noon(time.January, 6)},
					{Kind: domain.EventLabeled, Label: "B-unstable", CreatedAt: noon(time.January, 11)},
					{Kind: domain.EventLabeled, Label: "T-libs", CreatedAt: noon(time.January, 11)},
				}, nil
			}
			return nil, fmt.Errorf("unexpected issue %d", number)
		},
	}

	// Act
	rep, err := newService(client, 2).Build(context.Background(), civil.Date{Year: 2024, Month: time.January, Day: 15})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Issues)
	assert.Equal(t, 1, rep.Kinds["mentioned"])

	var got []string
	for _, r := range rep.Rows {
		age := "-"
		if r.MedianAgeDays != nil {
			age = fmt.Sprint(*r.MedianAgeDays)
		}
		got = append(got, fmt.Sprintf("%s %d %s", r.Date, r.Count, age))
	}
	assert.Equal(t, []string{
		"2024-01-10 1 9",
		"2024-01-11 2 6", // created {Jan 1, Jan 5}: index 1 -> Jan 5
		"2024-01-12 2 7",
		"2024-01-13 1 8", // only issue 2 left
		"2024-01-14 1 9",
	}, got)
}

// TestBuild_EventFetchErrorAborts tests that one failing issue fails the whole run.
func TestBuild_EventFetchErrorAborts(t *testing.T) {
	// Arrange
	fetchErr := &api.FetchError{URL: "https://api.github.com/repos/o/r/issues/3/events", StatusCode: 502, Body: "bad gateway"}
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) {
			return []domain.Issue{{Number: 1}, {Number: 2}, {Number: 3}}, nil
		},
		getIssueEventsFunc: func(ctx context.Context, number int) ([]domain.Event, error) {
			if number == 3 {
				return nil, fetchErr
			}
			return nil, nil
		},
	}

	// Act
	rep, err := newService(client, 3).Build(context.Background(), civil.DateOf(time.Now()))

	// Assert
	assert.Nil(t, rep)
	var fe *api.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 502, fe.StatusCode)
}

// TestBuild_IssuesErrorAborts tests that the issue list failure is returned before any event fetch.
func TestBuild_IssuesErrorAborts(t *testing.T) {
	var eventCalls int32
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) {
			return nil, errors.New("boom")
		},
		getIssueEventsFunc: func(ctx context.Context, number int) ([]domain.Event, error) {
			atomic.AddInt32(&eventCalls, 1)
			return nil, nil
		},
	}

	_, err := newService(client, 1).Build(context.Background(), civil.DateOf(time.Now()))

	assert.EqualError(t, err, "boom")
	assert.Zero(t, atomic.LoadInt32(&eventCalls))
}

// TestBuild_RespectsConcurrency tests that event fetches never exceed the configured limit.
func TestBuild_RespectsConcurrency(t *testing.T) {
	// Arrange
	var inFlight, peak int32
	issues := make([]domain.Issue, 20)
	for i := range issues {
		issues[i] = domain.Issue{Number: i + 1}
	}
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) { return issues, nil },
		getIssueEventsFunc: func(ctx context.Context, number int) ([]domain.Event, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil, nil
		},
	}

	// Act
	_, err := newService(client, 3).Build(context.Background(), civil.DateOf(time.Now()))

	// Assert
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

// TestTimeline tests the single-issue timeline.
func TestTimeline(t *testing.T) {
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) {
			return []domain.Issue{{Number: 9}, {Number: 4, CreatedAt: noon(time.March, 1)}}, nil
		},
		getIssueEventsFunc: func(ctx context.Context, number int) ([]domain.Event, error) {
			require.Equal(t, 4, number)
			return []domain.Event{
				{Kind: domain.EventLabeled, Label: "T-libs", CreatedAt: noon(time.March, 2)},
				{Kind: "assigned", CreatedAt: noon(time.March, 3)},
				{Kind: domain.EventLabeled, Label: "B-unstable", CreatedAt: noon(time.March, 4)},
			}, nil
		},
	}

	issue, steps, err := newService(client, 1).Timeline(context.Background(), 4)

	require.NoError(t, err)
	assert.Equal(t, 4, issue.Number)
	require.Len(t, steps, 2)
	assert.Equal(t, timeline.EffectEnter, steps[1].Effect)
}

func TestTimeline_NotFound(t *testing.T) {
	client := &mockClient{
		getIssuesFunc: func(ctx context.Context) ([]domain.Issue, error) {
			return []domain.Issue{{Number: 1}, {Number: 3}}, nil
		},
	}

	_, _, err := newService(client, 1).Timeline(context.Background(), 2)

	assert.ErrorIs(t, err, ErrIssueNotFound)
}

func TestFormatKinds(t *testing.T) {
	assert.Equal(t, "none", formatKinds(nil))
	assert.Equal(t, "closed=1 labeled=3", formatKinds(map[domain.EventKind]int{
		domain.EventLabeled: 3,
		domain.EventClosed:  1,
	}))
}

// countingHTTPClient serves canned GitHub pages and counts requests.
type countingHTTPClient struct {
	calls int32
}

func (c *countingHTTPClient) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	body := `[]`
	switch {
	case strings.HasSuffix(req.URL.Path, "/issues"):
		body = `[{"number": 1, "created_at": "2024-02-01T08:00:00Z", "labels": [{"name":"T-libs"},{"name":"B-unstable"}]}]`
	case strings.HasSuffix(req.URL.Path, "/issues/1/events"):
		body = `[
			{"event": "labeled", "label": {"name": "T-libs"}, "created_at": "2024-02-02T08:00:00Z"},
			{"event": "labeled", "label": {"name": "B-unstable"}, "created_at": "2024-02-02T09:00:00Z"},
			{"event": "closed", "created_at": "2024-02-04T08:00:00Z"}
		]`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

// TestBuild_WarmCacheMakesNoRequests tests that a second run over the same cache
// directory produces identical output with zero network calls.
func TestBuild_WarmCacheMakesNoRequests(t *testing.T) {
	// Arrange
	httpClient := &countingHTTPClient{}
	dir := t.TempDir()
	run := func() string {
		pager := api.NewPager(api.NewBaseClient(github.DefaultBaseURL, "", httpClient), api.PagerConfig{
			Decorate: github.DecorateRequest,
			Logger:   nopLogger{},
		})
		source := api.NewCachingSource(pager, cache.NewFileCache(dir, nopLogger{}), nopLogger{})
		client := github.NewClient(api.ClientConfig{Project: "rust-lang/rust", Labels: trackedLabels}, source)

		rep, err := newService(client, 2).Build(context.Background(), civil.Date{Year: 2024, Month: time.February, Day: 6})
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, report.TextRenderer{}.Render(&buf, rep.Rows))
		return buf.String()
	}

	// Act
	first := run()
	callsAfterFirst := atomic.LoadInt32(&httpClient.calls)
	second := run()

	// Assert
	assert.Equal(t, int32(2), callsAfterFirst)
	assert.Equal(t, callsAfterFirst, atomic.LoadInt32(&httpClient.calls), "second run must not hit the network")
	assert.Equal(t, first, second)
	assert.Equal(t, "2024-02-02 1 1\n2024-02-03 1 2\n2024-02-04 0 -\n2024-02-05 0 -\n", first)
}
