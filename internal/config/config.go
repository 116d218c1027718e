// Package config defines histsync configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and HISTSYNC_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogDir enables the file log sink when set.
	LogDir string `koanf:"log_dir"`

	// LogRetentionDays is how long old log files in LogDir are kept.
	LogRetentionDays int `koanf:"log_retention_days"`

	// MetricsAddr serves /healthz and /stats during a run, e.g. ":9090".
	// Empty disables the side server.
	MetricsAddr string `koanf:"metrics_addr"`

	// Source and destination historian endpoints.
	SourceDriver      string `koanf:"source_driver"`
	SourceDSN         string `koanf:"source_dsn"`
	DestinationDriver string `koanf:"destination_driver"`
	DestinationDSN    string `koanf:"destination_dsn"`

	// PageSize bounds every catalog request and creation batch.
	PageSize int `koanf:"page_size"`

	// WorkerCount > 1 copies points concurrently.
	WorkerCount int `koanf:"worker_count"`

	// PointQuery selects points by name; comma separated wildcard patterns.
	PointQuery string `koanf:"point_query"`

	// PointAttributes is applied to every point created on the destination.
	PointAttributes map[string]any `koanf:"point_attributes"`

	// RangeStart and RangeEnd are RFC3339 timestamps. When both are empty the
	// range is the last LookbackDays days.
	RangeStart   string `koanf:"range_start"`
	RangeEnd     string `koanf:"range_end"`
	LookbackDays int    `koanf:"lookback_days"`

	// ValueFilter narrows copied values, e.g. "value > 0".
	ValueFilter string `koanf:"value_filter"`

	// Backward search defaults.
	SearchStartDays            int `koanf:"search_start_days"`
	SearchEndDays              int `koanf:"search_end_days"`
	SearchMaxAttempts          int `koanf:"search_max_attempts"`
	SearchLastValidMaxAttempts int `koanf:"search_last_valid_max_attempts"`

	// Report output and archive.
	ReportDir       string `koanf:"report_dir"`
	ArchiveBucket   string `koanf:"archive_bucket"`
	ArchiveRegion   string `koanf:"archive_region"`
	ArchiveEndpoint string `koanf:"archive_endpoint"`
	ArchivePrefix   string `koanf:"archive_prefix"`

	// Static archive credentials; empty uses the default AWS chain.
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`

	// Notification. MailTo and MailCC are comma separated.
	SMTPAddr      string `koanf:"smtp_addr"`
	MailFrom      string `koanf:"mail_from"`
	MailTo        string `koanf:"mail_to"`
	MailCC        string `koanf:"mail_cc"`
	MailPickupDir string `koanf:"mail_pickup_dir"`
	SMTPUsername  string `koanf:"smtp_username"`
	SMTPPassword  string `koanf:"smtp_password"`
	SMTPTimeoutMS int    `koanf:"smtp_timeout_ms"`

	// Adapter retry policy.
	RetryMaxAttempts      int `koanf:"retry_max_attempts"`
	RetryInitialBackoffMS int `koanf:"retry_initial_backoff_ms"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                   "info",
		LogRetentionDays:           30,
		SourceDriver:               DriverSQLite,
		SourceDSN:                  "source.db",
		DestinationDriver:          DriverSQLite,
		DestinationDSN:             "destination.db",
		PageSize:                   10_000,
		WorkerCount:                1,
		PointQuery:                 "*",
		PointAttributes:            map[string]any{},
		LookbackDays:               1,
		SearchStartDays:            -365,
		SearchEndDays:              0,
		SearchMaxAttempts:          5,
		SearchLastValidMaxAttempts: 15,
		ReportDir:                  "reports",
		ArchivePrefix:              "histsync/",
		RetryMaxAttempts:           3,
		RetryInitialBackoffMS:      100,
		SMTPTimeoutMS:              30_000,
	}
}

// Validate checks the invariants the engine relies on.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive, got %d", ErrInvalidConfig, c.PageSize)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	}
	for _, d := range []string{c.SourceDriver, c.DestinationDriver} {
		if d != DriverSQLite && d != DriverMemory {
			return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, d)
		}
	}
	if c.SearchStartDays > 0 || c.SearchEndDays > 0 {
		return fmt.Errorf("%w: search offsets must not be positive", ErrInvalidConfig)
	}
	if c.SearchStartDays >= c.SearchEndDays {
		return fmt.Errorf("%w: search_start_days %d must be before search_end_days %d",
			ErrInvalidConfig, c.SearchStartDays, c.SearchEndDays)
	}
	if _, _, err := c.Range(time.Now()); err != nil {
		return err
	}
	return nil
}

// Range resolves the configured copy range. Explicit timestamps win over
// the lookback; a missing end means now.
func (c *Config) Range(now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if c.RangeEnd != "" {
		t, err := time.Parse(time.RFC3339, c.RangeEnd)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: range_end: %w", ErrInvalidConfig, err)
		}
		end = t.UTC()
	}

	start := end.AddDate(0, 0, -c.LookbackDays)
	if c.RangeStart != "" {
		t, err := time.Parse(time.RFC3339, c.RangeStart)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: range_start: %w", ErrInvalidConfig, err)
		}
		start = t.UTC()
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range_start %s is after range_end %s",
			ErrInvalidConfig, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

// Recipients splits a comma separated address list.
func Recipients(list string) []string {
	var out []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// RetryInitialBackoff returns the configured first retry delay.
func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMS) * time.Millisecond
}
