package gitlab

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

// DefaultBaseURL is gitlab.com.
const DefaultBaseURL = "https://gitlab.com"

// Client implements api.Client for GitLab issues.
// GitLab splits the issue timeline over two endpoints (label and state events);
// they are merged into one chronological domain event log.
type Client struct {
	baseURL string
	project string
	labels  []string
	state   string
	source  api.RecordSource
}

// NewClient creates a new GitLab client.
// Uses dependency injection for the record source (IoC).
func NewClient(config api.ClientConfig, source api.RecordSource) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		project: config.Project,
		labels:  config.Labels,
		state:   config.State,
		source:  source,
	}
}

// DecorateRequest sets the GitLab token header.
func DecorateRequest(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("PRIVATE-TOKEN", token)
	}
	req.Header.Set("Accept", "application/json")
}

// projectPath returns the URL-encoded project reference (numeric ID or "group/project").
func (c *Client) projectPath() string {
	return url.PathEscape(c.project)
}

// IssuesURL returns the collection URL for issues carrying all tracked labels.
func (c *Client) IssuesURL() string {
	params := url.Values{}
	params.Set("labels", strings.Join(c.labels, ","))
	params.Set("scope", "all")
	params.Set("per_page", strconv.Itoa(api.DefaultPageSize))
	switch c.state {
	case "open", "opened":
		params.Set("state", "opened")
	case "closed":
		params.Set("state", "closed")
	}
	return fmt.Sprintf("%s/api/v4/projects/%s/issues?%s", c.baseURL, c.projectPath(), params.Encode())
}

// LabelEventsURL returns the resource label events URL of one issue.
func (c *Client) LabelEventsURL(iid int) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/issues/%d/resource_label_events?per_page=%d",
		c.baseURL, c.projectPath(), iid, api.DefaultPageSize)
}

// StateEventsURL returns the resource state events URL of one issue.
func (c *Client) StateEventsURL(iid int) string {
	return fmt.Sprintf("%s/api/v4/projects/%s/issues/%d/resource_state_events?per_page=%d",
		c.baseURL, c.projectPath(), iid, api.DefaultPageSize)
}

// GetIssues retrieves every issue carrying both tracked labels.
func (c *Client) GetIssues(ctx context.Context) ([]domain.Issue, error) {
	records, err := c.source.Records(ctx, c.IssuesURL(), "issues.json")
	if err != nil {
		return nil, fmt.Errorf("failed to get issues: %w", err)
	}

	issues := make([]domain.Issue, 0, len(records))
	for i, raw := range records {
		var gl gitlabIssue
		if err := json.Unmarshal(raw, &gl); err != nil {
			return nil, fmt.Errorf("failed to decode issue record %d: %w", i, err)
		}
		issues = append(issues, convertIssue(gl))
	}
	return issues, nil
}

// GetIssueEvents retrieves label and state events of one issue, merged chronologically.
func (c *Client) GetIssueEvents(ctx context.Context, iid int) ([]domain.Event, error) {
	labelRecords, err := c.source.Records(ctx, c.LabelEventsURL(iid), fmt.Sprintf("%d-label-events.json", iid))
	if err != nil {
		return nil, fmt.Errorf("failed to get label events for issue #%d: %w", iid, err)
	}
	stateRecords, err := c.source.Records(ctx, c.StateEventsURL(iid), fmt.Sprintf("%d-state-events.json", iid))
	if err != nil {
		return nil, fmt.Errorf("failed to get state events for issue #%d: %w", iid, err)
	}

	events := make([]domain.Event, 0, len(labelRecords)+len(stateRecords))
	for i, raw := range labelRecords {
		var gl gitlabLabelEvent
		if err := json.Unmarshal(raw, &gl); err != nil {
			return nil, fmt.Errorf("failed to decode label event %d of issue #%d: %w", i, iid, err)
		}
		events = append(events, convertLabelEvent(gl, iid))
	}
	for i, raw := range stateRecords {
		var gl gitlabStateEvent
		if err := json.Unmarshal(raw, &gl); err != nil {
			return nil, fmt.Errorf("failed to decode state event %d of issue #%d: %w", i, iid, err)
		}
		events = append(events, convertStateEvent(gl, iid))
	}

	domain.SortEvents(events)
	return events, nil
}

// convertIssue converts a GitLab issue to domain model.
func convertIssue(gl gitlabIssue) domain.Issue {
	return domain.Issue{
		Number:    gl.IID,
		Title:     gl.Title,
		State:     gl.State,
		Labels:    gl.Labels,
		CreatedAt: gl.CreatedAt,
		WebURL:    gl.WebURL,
	}
}

// convertLabelEvent converts a resource label event to domain model.
// A deleted label comes back as null and leaves Label empty.
func convertLabelEvent(gl gitlabLabelEvent, iid int) domain.Event {
	ev := domain.Event{
		IssueNumber: iid,
		Kind:        convertLabelAction(gl.Action),
		CreatedAt:   gl.CreatedAt,
	}
	if gl.Label != nil {
		ev.Label = gl.Label.Name
	}
	return ev
}

// convertLabelAction converts a GitLab label action to domain event kind.
func convertLabelAction(action string) domain.EventKind {
	switch action {
	case "add":
		return domain.EventLabeled
	case "remove":
		return domain.EventUnlabeled
	default:
		return domain.EventKind("label_" + action)
	}
}

// convertStateEvent converts a resource state event to domain model.
func convertStateEvent(gl gitlabStateEvent, iid int) domain.Event {
	kind := domain.EventKind(gl.State)
	if gl.State == "closed" {
		kind = domain.EventClosed
	} else if gl.State == "reopened" {
		kind = domain.EventReopened
	}
	return domain.Event{
		IssueNumber: iid,
		Kind:        kind,
		CreatedAt:   gl.CreatedAt,
	}
}

// GitLab API response types
type gitlabIssue struct {
	IID       int       `json:"iid"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	WebURL    string    `json:"web_url"`
}

type gitlabLabel struct {
	Name string `json:"name"`
}

type gitlabLabelEvent struct {
	Action    string       `json:"action"` // "add" or "remove"
	Label     *gitlabLabel `json:"label"`
	CreatedAt time.Time    `json:"created_at"`
}

type gitlabStateEvent struct {
	State     string    `json:"state"` // "closed", "reopened", "merged"
	CreatedAt time.Time `json:"created_at"`
}
