// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. NETGRAPH_DATABASE_DSN.
const EnvPrefix = "NETGRAPH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownGraceSeconds  int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the engine, workers and run retries.
type CrawlerConfig struct {
	MaxDepth            int `mapstructure:"max_depth"`
	CallTimeoutSeconds  int `mapstructure:"call_timeout_seconds"`
	CloseTimeoutSeconds int `mapstructure:"close_timeout_seconds"`
	RunTimeoutMinutes   int `mapstructure:"run_timeout_minutes"`
	GitHubWorkers       int `mapstructure:"github_workers"`
	QueueDepth          int `mapstructure:"queue_depth"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	RetryBaseMs         int `mapstructure:"retry_base_ms"`
	RetryMaxMs          int `mapstructure:"retry_max_ms"`
}

// GitHubConfig tunes the REST client.
type GitHubConfig struct {
	Token                    string  `mapstructure:"token"`
	BaseURL                  string  `mapstructure:"base_url"`
	UserAgent                string  `mapstructure:"user_agent"`
	RequestTimeoutSeconds    int     `mapstructure:"request_timeout_seconds"`
	RPS                      float64 `mapstructure:"rps"`
	Burst                    int     `mapstructure:"burst"`
	PRWorkers                int     `mapstructure:"pr_workers"`
	MaxPRPages               int     `mapstructure:"max_pr_pages"`
	MaxContributorPages      int     `mapstructure:"max_contributor_pages"`
	MaxSearchPages           int     `mapstructure:"max_search_pages"`
	MaxOwnedPages            int     `mapstructure:"max_owned_pages"`
	IncludeOwnedRepos        bool    `mapstructure:"include_owned_repos"`
	EmailFromCommits         bool    `mapstructure:"email_from_commits"`
	CacheSize                int     `mapstructure:"cache_size"`
	CacheTTLMinutes          int     `mapstructure:"cache_ttl_minutes"`
	MaxRateLimitPauseSeconds int     `mapstructure:"max_rate_limit_pause_seconds"`
}

// LinkedInConfig tunes the browser session. Username/Password seed the vault
// with a default account at startup; they are never written anywhere.
type LinkedInConfig struct {
	BaseURL                  string `mapstructure:"base_url"`
	Username                 string `mapstructure:"username"`
	Password                 string `mapstructure:"password"`
	MaxSessions              int    `mapstructure:"max_sessions"`
	LoginSettleSeconds       int    `mapstructure:"login_settle_seconds"`
	ManualLoginWaitSeconds   int    `mapstructure:"manual_login_wait_seconds"`
	AllowManualLogin         bool   `mapstructure:"allow_manual_login"`
	ScrollPauseMs            int    `mapstructure:"scroll_pause_ms"`
	MaxScrolls               int    `mapstructure:"max_scrolls"`
	EnrichContacts           bool   `mapstructure:"enrich_contacts"`
	Visible                  bool   `mapstructure:"visible"`
	NavigationTimeoutSeconds int    `mapstructure:"navigation_timeout_seconds"`
	UserAgent                string `mapstructure:"user_agent"`
}

// DatabaseConfig selects and tunes the entity store.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	Path               string `mapstructure:"path"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
	BusyTimeoutMs      int    `mapstructure:"busy_timeout_ms"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
}

// StorageConfig selects where network snapshots go.
type StorageConfig struct {
	// Backend is memory, local or gcs.
	Backend   string `mapstructure:"backend"`
	Snapshots bool   `mapstructure:"snapshots"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run completion events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig controls periodic re-crawls of registered seeds.
type SchedulerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
	StaggerMs     int  `mapstructure:"stagger_ms"`
	RunOnStart    bool `mapstructure:"run_on_start"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	LogEvents      bool `mapstructure:"log_events"`
}

// TracingConfig enables OpenTelemetry tracing, exported to Cloud Trace when a project is set.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file, .env and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_grace_seconds", 10)
	v.SetDefault("auth.enabled", false)

	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.call_timeout_seconds", 60)
	v.SetDefault("crawler.close_timeout_seconds", 15)
	v.SetDefault("crawler.run_timeout_minutes", 120)
	v.SetDefault("crawler.github_workers", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.max_attempts", 2)
	v.SetDefault("crawler.retry_base_ms", 5000)
	v.SetDefault("crawler.retry_max_ms", 60000)

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.user_agent", "netgraph-crawler/0.1")
	v.SetDefault("github.request_timeout_seconds", 20)
	v.SetDefault("github.rps", 1.0)
	v.SetDefault("github.burst", 2)
	v.SetDefault("github.pr_workers", 5)
	v.SetDefault("github.max_pr_pages", 3)
	v.SetDefault("github.max_contributor_pages", 3)
	v.SetDefault("github.max_search_pages", 10)
	v.SetDefault("github.max_owned_pages", 3)
	v.SetDefault("github.include_owned_repos", true)
	v.SetDefault("github.email_from_commits", true)
	v.SetDefault("github.cache_size", 2048)
	v.SetDefault("github.cache_ttl_minutes", 60)
	v.SetDefault("github.max_rate_limit_pause_seconds", 900)

	v.SetDefault("linkedin.base_url", "https://www.linkedin.com")
	v.SetDefault("linkedin.max_sessions", 1)
	v.SetDefault("linkedin.login_settle_seconds", 5)
	v.SetDefault("linkedin.manual_login_wait_seconds", 120)
	v.SetDefault("linkedin.allow_manual_login", false)
	v.SetDefault("linkedin.scroll_pause_ms", 1500)
	v.SetDefault("linkedin.max_scrolls", 25)
	v.SetDefault("linkedin.enrich_contacts", false)
	v.SetDefault("linkedin.navigation_timeout_seconds", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "netgraph.db")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.snapshots", false)
	v.SetDefault("storage.local_dir", "snapshots")
	v.SetDefault("storage.prefix", "snapshots")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_hours", 24)
	v.SetDefault("scheduler.stagger_ms", 2000)

	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait_ms", 500)

	v.SetDefault("tracing.service_name", "netgraph-crawler")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.MaxDepth <= 0 {
		return fmt.Errorf("crawler.max_depth must be > 0")
	}
	if c.Crawler.GitHubWorkers <= 0 {
		return fmt.Errorf("crawler.github_workers must be > 0")
	}
	if c.Crawler.QueueDepth < 0 {
		return fmt.Errorf("crawler.queue_depth must be >= 0")
	}
	if c.LinkedIn.MaxSessions <= 0 {
		return fmt.Errorf("linkedin.max_sessions must be > 0")
	}
	if c.GitHub.RPS < 0 {
		return fmt.Errorf("github.rps must be >= 0")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres, sqlite or memory, got %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs, got %q", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalHours <= 0 {
		return fmt.Errorf("scheduler.interval_hours must be > 0 when the scheduler is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CallTimeout is the per-adapter-call budget.
func (c CrawlerConfig) CallTimeout() time.Duration { return seconds(c.CallTimeoutSeconds) }

// CloseTimeout bounds session teardown.
func (c CrawlerConfig) CloseTimeout() time.Duration { return seconds(c.CloseTimeoutSeconds) }

// RunTimeout bounds one whole run.
func (c CrawlerConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// RetryDelays returns the base and maximum run retry backoff.
func (c CrawlerConfig) RetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.RetryBaseMs) * time.Millisecond, time.Duration(c.RetryMaxMs) * time.Millisecond
}

// Interval is the re-sync period.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Stagger is the pause between seeds in one round.
func (c SchedulerConfig) Stagger() time.Duration {
	return time.Duration(c.StaggerMs) * time.Millisecond
}

// RequestTimeout bounds one API request.
func (c ServerConfig) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }

// ShutdownGrace bounds graceful shutdown.
func (c ServerConfig) ShutdownGrace() time.Duration { return seconds(c.ShutdownGraceSeconds) }
