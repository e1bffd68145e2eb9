package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vilaca/labelage/internal/api"
	"github.com/vilaca/labelage/internal/api/github"
	"github.com/vilaca/labelage/internal/api/gitlab"
	"github.com/vilaca/labelage/internal/cache"
	"github.com/vilaca/labelage/internal/config"
	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/report"
	"github.com/vilaca/labelage/internal/service"
	"github.com/vilaca/labelage/internal/telemetry"
	"github.com/vilaca/labelage/internal/timeline"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configFile string
	out        io.Writer // Report data
	errOut     io.Writer // Logs and telemetry

	// httpClient is replaced in tests.
	httpClient api.HTTPClient
	now        func() time.Time
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      config.NewViper(),
		out:    out,
		errOut: errOut,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labelage",
		Short: "Track how long issues carry a pair of labels",
		Long: `labelage fetches every issue carrying two labels, replays each issue's event
log and prints one line per day: the date, how many issues held both labels
that day and the median age in days of those issues.

API responses are cached as JSON files in the cache directory; a present file
is never fetched again. Use "labelage cache clear" to start over.

Examples:
  labelage                                         # rust-lang/rust, T-libs + B-unstable
  labelage --repo golang/go --labels NeedsFix,release-blocker
  labelage --as-of yesterday --format json
  labelage timeline 12345                          # How one issue entered and left`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runReport,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default ./labelage.yaml)")
	flags.String("platform", domain.PlatformGitHub, "Issue tracker: github or gitlab")
	flags.String("base-url", "", "API base URL (default per platform)")
	flags.String("token", "", "API token (default $GITHUB_TOKEN or $GITLAB_TOKEN)")
	flags.String("repo", "rust-lang/rust", "Repository (owner/repo) or GitLab project")
	flags.StringSlice("labels", []string{"T-libs", "B-unstable"}, "The two tracked labels")
	flags.String("state", "all", "Issue state filter: all, open or closed")
	flags.String("cache-dir", ".", "Directory for cached API records")
	flags.Int("concurrency", 4, "Parallel event fetches")
	flags.Int("max-retries", 0, "Retries on rate limits and server errors (0 fails on the first error)")
	flags.String("reopen-policy", string(timeline.ReopenAlways), "Reopen handling: always or when-labeled")
	flags.BoolP("verbose", "v", false, "Log fetches and cache hits to stderr")
	flags.Bool("otel", false, "Print OpenTelemetry spans and metrics to stderr")

	cmd.Flags().StringP("format", "f", string(report.FormatText), "Output format: text, json or yaml")
	cmd.Flags().String("as-of", "", "Reference day, rows stop the day before (YYYY-MM-DD, 3d, yesterday)")

	a.bind(flags.Lookup("otel"), "otel_enabled")
	for _, name := range []string{"platform", "base-url", "token", "repo", "labels", "state",
		"cache-dir", "concurrency", "max-retries", "reopen-policy", "verbose"} {
		a.bind(flags.Lookup(name), "")
	}
	a.bind(cmd.Flags().Lookup("format"), "")
	a.bind(cmd.Flags().Lookup("as-of"), "")

	cmd.AddCommand(a.timelineCmd())
	cmd.AddCommand(a.cacheCmd())
	cmd.AddCommand(a.versionCmd())

	return cmd
}

// bind ties a flag to a viper key; key defaults to the flag name with '-' as '_'.
func (a *app) bind(f *pflag.Flag, key string) {
	if key == "" {
		key = strings.ReplaceAll(f.Name, "-", "_")
	}
	// BindPFlag only fails on a nil flag.
	_ = a.v.BindPFlag(key, f)
}

// load reads and validates configuration, then sets up telemetry.
// The returned cleanup flushes telemetry and must always be called.
func (a *app) load(ctx context.Context) (*config.Config, func(), error) {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return nil, func() {}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, func() {}, err
	}

	configFile := cfg.ConfigFile
	if configFile == "" {
		configFile = "none"
	}
	a.logger(cfg).Printf("[Config] file: %s, platform: %s, token set: %t", configFile, cfg.Platform, cfg.HasToken())

	if err := telemetry.Init(ctx, telemetry.Options{Enabled: cfg.OTelEnabled, Writer: a.errOut}, "labelage", Version); err != nil {
		return nil, func() {}, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}
	return cfg, cleanup, nil
}

func (a *app) logger(cfg *config.Config) *log.Logger {
	if !cfg.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(a.errOut, "", log.LstdFlags)
}

func (a *app) runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, cleanup, err := a.load(ctx)
	defer cleanup()
	if err != nil {
		return err
	}

	until, err := config.ParseAsOf(cfg.AsOf, a.now().UTC())
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	renderer, err := report.NewRenderer(format)
	if err != nil {
		return err
	}

	logger := a.logger(cfg)
	svc, err := a.buildService(cfg, logger)
	if err != nil {
		return err
	}

	logger.Printf("[Report] %s %s, labels %v, up to %s", cfg.Platform, cfg.Repo, cfg.Labels, until)
	rep, err := svc.Build(ctx, until)
	if err != nil {
		return err
	}
	logger.Printf("[Report] %d issues, %d rows", rep.Issues, len(rep.Rows))

	return renderer.Render(a.out, rep.Rows)
}

// platformClient is an api.Client that can name its issue query.
type platformClient interface {
	api.Client
	IssuesURL() string
}

// newPlatformClient returns the configured platform's client over source,
// with the request decorator its pager needs.
func newPlatformClient(cfg *config.Config, source api.RecordSource) (platformClient, api.RequestDecorator, error) {
	clientConfig := api.ClientConfig{
		BaseURL: cfg.BaseURL,
		Project: cfg.Repo,
		Labels:  cfg.Labels,
		State:   cfg.State,
	}

	switch cfg.Platform {
	case domain.PlatformGitHub:
		return github.NewClient(clientConfig, source), github.DecorateRequest, nil
	case domain.PlatformGitLab:
		return gitlab.NewClient(clientConfig, source), gitlab.DecorateRequest, nil
	}
	return nil, nil, fmt.Errorf("unknown platform %q", cfg.Platform)
}

// cacheDir returns the directory holding this configuration's records.
// Each platform, project and issue query gets its own directory below cache_dir.
func cacheDir(cfg *config.Config) (string, error) {
	client, _, err := newPlatformClient(cfg, nil)
	if err != nil {
		return "", err
	}
	return cache.Namespace(cfg.CacheDir, cfg.Platform, cfg.Repo, client.IssuesURL()), nil
}

// buildService wires up all dependencies and returns the report service.
// This is the composition root: network pager, file cache decorator,
// platform client, service.
func (a *app) buildService(cfg *config.Config, logger *log.Logger) (*service.ReportService, error) {
	policy, err := timeline.ParseReopenPolicy(cfg.ReopenPolicy)
	if err != nil {
		return nil, err
	}

	// The client without a source only names the query for the cache directory.
	query, decorate, err := newPlatformClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	dir := cache.Namespace(cfg.CacheDir, cfg.Platform, cfg.Repo, query.IssuesURL())

	pager := api.NewPager(api.NewBaseClient(cfg.BaseURL, cfg.Token, a.httpClient), api.PagerConfig{
		Decorate:   decorate,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	store := cache.NewFileCache(dir, logger)
	source := api.NewCachingSource(pager, store, logger)

	client, _, err := newPlatformClient(cfg, source)
	if err != nil {
		return nil, err
	}
	logger.Printf("[Cache] using %s", store.Dir())

	return service.NewReportService(client, service.Options{
		Labels:       cfg.Labels,
		ReopenPolicy: policy,
		Concurrency:  cfg.Concurrency,
	}, logger), nil
}
