package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vilaca/labelage/internal/api"
	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/report"
	"github.com/vilaca/labelage/internal/telemetry"
	"github.com/vilaca/labelage/internal/timeline"
)

// ErrIssueNotFound is returned by Timeline for an issue outside the tracked query.
var ErrIssueNotFound = errors.New("issue not found")

// Logger interface for logging operations.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Options configures a ReportService.
type Options struct {
	Labels       []string
	ReopenPolicy timeline.ReopenPolicy
	Concurrency  int // Parallel GetIssueEvents calls
}

// ReportService runs fetch, replay and aggregation for one tracker.
// Follows Single Responsibility Principle - orchestrates the stages, owns none of them.
type ReportService struct {
	client api.Client
	opts   Options
	logger Logger
	tracer trace.Tracer
}

// Report is the outcome of one run.
type Report struct {
	Rows   []domain.DayStat
	Issues int                      // Issues replayed
	Kinds  map[domain.EventKind]int // Every event kind seen, including ignored ones
}

// NewReportService creates a new report service.
func NewReportService(client api.Client, opts Options, logger Logger) *ReportService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &ReportService{
		client: client,
		opts:   opts,
		logger: logger,
		tracer: telemetry.Tracer(""),
	}
}

// Build fetches every tracked issue and its events, replays them in issue
// number order and aggregates daily rows up to the day before until.
// Any fetch failure aborts the whole run.
func (s *ReportService) Build(ctx context.Context, until civil.Date) (*Report, error) {
	issues, err := s.fetchIssues(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.fetchEvents(ctx, issues)
	if err != nil {
		return nil, err
	}

	_, span := s.tracer.Start(ctx, "labelage.replay")
	replayer, err := timeline.NewReplayer(s.opts.Labels, s.opts.ReopenPolicy)
	if err != nil {
		span.End()
		return nil, err
	}
	for i, issue := range issues {
		replayer.Replay(issue, events[i])
	}
	history := replayer.History()
	span.SetAttributes(attribute.Int("labelage.days_bucketed", len(history.Buckets)))
	span.End()

	s.logger.Printf("[Replay] %d issues, observed event kinds: %s", len(issues), formatKinds(history.Kinds))

	_, span = s.tracer.Start(ctx, "labelage.aggregate")
	rows := report.Aggregate(history, until)
	span.SetAttributes(attribute.Int("labelage.rows", len(rows)))
	span.End()

	return &Report{
		Rows:   rows,
		Issues: len(issues),
		Kinds:  history.Kinds,
	}, nil
}

// Timeline replays a single issue and returns its tracked-label steps.
func (s *ReportService) Timeline(ctx context.Context, number int) (domain.Issue, []timeline.Step, error) {
	issues, err := s.fetchIssues(ctx)
	if err != nil {
		return domain.Issue{}, nil, err
	}

	idx := sort.Search(len(issues), func(i int) bool { return issues[i].Number >= number })
	if idx == len(issues) || issues[idx].Number != number {
		return domain.Issue{}, nil, fmt.Errorf("issue #%d: %w", number, ErrIssueNotFound)
	}
	issue := issues[idx]

	events, err := s.client.GetIssueEvents(ctx, number)
	if err != nil {
		return domain.Issue{}, nil, err
	}

	replayer, err := timeline.NewReplayer(s.opts.Labels, s.opts.ReopenPolicy)
	if err != nil {
		return domain.Issue{}, nil, err
	}
	return issue, replayer.Replay(issue, events), nil
}

// fetchIssues returns the tracked issues sorted by number.
func (s *ReportService) fetchIssues(ctx context.Context) ([]domain.Issue, error) {
	ctx, span := s.tracer.Start(ctx, "labelage.fetch_issues")
	defer span.End()

	issues, err := s.client.GetIssues(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Number < issues[j].Number })

	span.SetAttributes(attribute.Int("labelage.issues", len(issues)))
	return issues, nil
}

// fetchEvents loads every issue's events with bounded parallelism.
// Results are indexed like issues; the first error cancels the remaining fetches.
func (s *ReportService) fetchEvents(ctx context.Context, issues []domain.Issue) ([][]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "labelage.fetch_events")
	defer span.End()

	results := make([][]domain.Event, len(issues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, issue := range issues {
		g.Go(func() error {
			events, err := s.client.GetIssueEvents(gctx, issue.Number)
			if err != nil {
				return err
			}
			results[i] = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return results, nil
}

// formatKinds renders a kind tally as "closed=3 labeled=12 ...", sorted by kind.
func formatKinds(kinds map[domain.EventKind]int) string {
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, kinds[domain.EventKind(name)])
	}
	return strings.Join(parts, " ")
}
