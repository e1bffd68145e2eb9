package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vilaca/labelage/internal/api"
	"github.com/vilaca/labelage/internal/domain"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// Client implements api.Client for GitHub issues.
// Follows Single Responsibility Principle - only knows GitHub URLs and payloads;
// fetching and caching are delegated to the record source.
type Client struct {
	baseURL string
	repo    string
	labels  []string
	state   string
	source  api.RecordSource
}

// NewClient creates a new GitHub client.
// Uses dependency injection for the record source (IoC).
func NewClient(config api.ClientConfig, source api.RecordSource) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	state := config.State
	if state == "" {
		state = "all"
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		repo:    config.Project,
		labels:  config.Labels,
		state:   state,
		source:  source,
	}
}

// DecorateRequest sets GitHub auth and API version headers.
// Anonymous requests are sent when token is empty.
func DecorateRequest(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// IssuesURL returns the collection URL for issues carrying all tracked labels.
func (c *Client) IssuesURL() string {
	params := url.Values{}
	params.Set("state", c.state)
	params.Set("labels", strings.Join(c.labels, ","))
	params.Set("per_page", strconv.Itoa(api.DefaultPageSize))
	return fmt.Sprintf("%s/repos/%s/issues?%s", c.baseURL, c.repo, params.Encode())
}

// EventsURL returns the event log URL of one issue.
func (c *Client) EventsURL(number int) string {
	return fmt.Sprintf("%s/repos/%s/issues/%d/events?per_page=%d", c.baseURL, c.repo, number, api.DefaultPageSize)
}

// GetIssues retrieves every issue carrying both tracked labels.
// Pull requests are kept: the issues endpoint returns them and they carry labels too.
func (c *Client) GetIssues(ctx context.Context) ([]domain.Issue, error) {
	records, err := c.source.Records(ctx, c.IssuesURL(), "issues.json")
	if err != nil {
		return nil, fmt.Errorf("failed to get issues: %w", err)
	}

	issues := make([]domain.Issue, 0, len(records))
	for i, raw := range records {
		var gh githubIssue
		if err := json.Unmarshal(raw, &gh); err != nil {
			return nil, fmt.Errorf("failed to decode issue record %d: %w", i, err)
		}
		issues = append(issues, c.convertIssue(gh))
	}
	return issues, nil
}

// GetIssueEvents retrieves the event log of one issue.
func (c *Client) GetIssueEvents(ctx context.Context, number int) ([]domain.Event, error) {
	records, err := c.source.Records(ctx, c.EventsURL(number), fmt.Sprintf("%d-events.json", number))
	if err != nil {
		return nil, fmt.Errorf("failed to get events for issue #%d: %w", number, err)
	}

	events := make([]domain.Event, 0, len(records))
	for i, raw := range records {
		var gh githubEvent
		if err := json.Unmarshal(raw, &gh); err != nil {
			return nil, fmt.Errorf("failed to decode event record %d of issue #%d: %w", i, number, err)
		}
		events = append(events, convertEvent(gh, number))
	}
	return events, nil
}

// convertIssue converts a GitHub issue to domain model.
func (c *Client) convertIssue(gh githubIssue) domain.Issue {
	labels := make([]string, 0, len(gh.Labels))
	for _, l := range gh.Labels {
		labels = append(labels, l.Name)
	}

	return domain.Issue{
		Number:    gh.Number,
		Title:     gh.Title,
		State:     gh.State,
		Labels:    labels,
		CreatedAt: gh.CreatedAt,
		WebURL:    gh.HTMLURL,
	}
}

// convertEvent converts a GitHub issue event to domain model.
// GitHub event names are used as-is; unknown kinds pass through for the tally.
func convertEvent(gh githubEvent, number int) domain.Event {
	ev := domain.Event{
		IssueNumber: number,
		Kind:        domain.EventKind(gh.Event),
		CreatedAt:   gh.CreatedAt,
	}
	if gh.Label != nil {
		ev.Label = gh.Label.Name
	}
	return ev
}

// GitHub API response types
type githubIssue struct {
	Number    int           `json:"number"`
	Title     string        `json:"title"`
	State     string        `json:"state"`
	Labels    []githubLabel `json:"labels"`
	CreatedAt time.Time     `json:"created_at"`
	HTMLURL   string        `json:"html_url"`
}

type githubLabel struct {
	Name string `json:"name"`
}

type githubEvent struct {
	Event     string       `json:"event"`
	Label     *githubLabel `json:"label,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
