package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/vilaca/labelage/internal/domain"
	"github.com/vilaca/labelage/internal/report"
	"github.com/vilaca/labelage/internal/timeline"
)

// EnvPrefix prefixes every environment variable read by Load (LABELAGE_REPO, ...).
const EnvPrefix = "LABELAGE"

// DefaultConfigName is looked up in the working directory when no --config is given.
const DefaultConfigName = "labelage"

// Config holds application configuration.
// Follows Single Responsibility - only holds configuration data.
type Config struct {
	Platform string // "github" or "gitlab"
	BaseURL  string
	Token    string

	// Repo is "owner/repo" for GitHub, a project ID or "group/project" for GitLab
	Repo   string
	Labels []string // Tracked label pair
	State  string   // Issue state filter: "all", "open", "closed"

	CacheDir     string
	Concurrency  int // Parallel event fetches
	MaxRetries   int // Extra attempts on rate limits and 5xx; 0 keeps failures fatal
	ReopenPolicy string
	Format       string
	AsOf         string // Reference day; rows stop the day before

	OTelEnabled bool
	Verbose     bool

	// ConfigFile is the file that was read, empty if none.
	ConfigFile string
}

// NewViper returns a viper instance with defaults and environment binding.
// Flags are bound on top of it by the command layer.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("platform", domain.PlatformGitHub)
	v.SetDefault("base_url", "")
	v.SetDefault("token", "")
	v.SetDefault("repo", "rust-lang/rust")
	v.SetDefault("labels", []string{"T-libs", "B-unstable"})
	v.SetDefault("state", "all")
	v.SetDefault("cache_dir", ".")
	v.SetDefault("concurrency", 4)
	v.SetDefault("max_retries", 0)
	v.SetDefault("reopen_policy", "always")
	v.SetDefault("format", "text")
	v.SetDefault("as_of", "")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from configFile (or ./labelage.yaml when present),
// environment variables and bound flags.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Platform:     strings.ToLower(strings.TrimSpace(v.GetString("platform"))),
		BaseURL:      strings.TrimSpace(v.GetString("base_url")),
		Token:        v.GetString("token"),
		Repo:         strings.TrimSpace(v.GetString("repo")),
		Labels:       splitList(v.Get("labels")),
		State:        v.GetString("state"),
		CacheDir:     v.GetString("cache_dir"),
		Concurrency:  v.GetInt("concurrency"),
		MaxRetries:   v.GetInt("max_retries"),
		ReopenPolicy: v.GetString("reopen_policy"),
		Format:       v.GetString("format"),
		AsOf:         v.GetString("as_of"),
		OTelEnabled:  v.GetBool("otel_enabled"),
		Verbose:      v.GetBool("verbose"),
		ConfigFile:   v.ConfigFileUsed(),
	}

	// Platform tokens from the usual variables when none was given explicitly
	if cfg.Token == "" {
		switch cfg.Platform {
		case domain.PlatformGitHub:
			cfg.Token = os.Getenv("GITHUB_TOKEN")
		case domain.PlatformGitLab:
			cfg.Token = os.Getenv("GITLAB_TOKEN")
		}
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Platform {
	case domain.PlatformGitHub, domain.PlatformGitLab:
	default:
		return fmt.Errorf("unknown platform %q (want %q or %q)", c.Platform, domain.PlatformGitHub, domain.PlatformGitLab)
	}
	if c.Repo == "" {
		return errors.New("repo must be set")
	}
	if len(c.Labels) != 2 {
		return fmt.Errorf("exactly two labels are required, got %d (%s)", len(c.Labels), strings.Join(c.Labels, ","))
	}
	if c.Labels[0] == c.Labels[1] {
		return fmt.Errorf("labels must differ, got %q twice", c.Labels[0])
	}
	switch c.State {
	case "all", "open", "closed":
	default:
		return fmt.Errorf("unknown state %q (want all, open or closed)", c.State)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := timeline.ParseReopenPolicy(c.ReopenPolicy); err != nil {
		return err
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		return err
	}
	return nil
}

// HasToken returns true if an API token is configured.
func (c *Config) HasToken() bool {
	return c.Token != ""
}

// splitList accepts a YAML list, a flag string slice or a comma-separated string.
func splitList(raw interface{}) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, ",")
	case []string:
		for _, s := range val {
			parts = append(parts, strings.Split(s, ",")...)
		}
	case []interface{}:
		for _, item := range val {
			parts = append(parts, strings.Split(fmt.Sprint(item), ",")...)
		}
	default:
		parts = strings.Split(fmt.Sprint(val), ",")
	}

	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
