// Package config defines service configuration and its layered loading.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the snapshot store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// Retention is how many snapshots are kept per (season, stat key).
	Retention int `koanf:"retention"`

	// TTL is the maximum age at which a snapshot is served without a rebuild.
	TTL time.Duration `koanf:"ttl"`

	// SchemaVersion and FormatterVersion are stamped on built snapshots;
	// stored snapshots with other values are rebuilt.
	SchemaVersion    int `koanf:"schema_version"`
	FormatterVersion int `koanf:"formatter_version"`

	// StatKeys is the known stat-key set. Empty means any key the compute
	// provider has data for.
	StatKeys []string `koanf:"stat_keys"`

	// ComputeDir is the root of the fixture compute provider.
	ComputeDir string `koanf:"compute_dir"`

	// ComputeLatencyMinMS and ComputeLatencyMaxMS simulate upstream latency.
	ComputeLatencyMinMS int `koanf:"compute_latency_min_ms"`
	ComputeLatencyMaxMS int `koanf:"compute_latency_max_ms"`

	// StaleWhileRevalidate serves stale snapshots and rebuilds them in the
	// background instead of blocking the request.
	StaleWhileRevalidate bool `koanf:"stale_while_revalidate"`

	// RefreshWorkerCount and RefreshQueueSize size the background refresh pool.
	RefreshWorkerCount int `koanf:"refresh_worker_count"`
	RefreshQueueSize   int `koanf:"refresh_queue_size"`

	// PendingLimit caps how many keys may wait for a background refresh.
	PendingLimit int `koanf:"pending_limit"`

	// BatchConcurrency bounds parallel builds during season-wide operations.
	BatchConcurrency int `koanf:"batch_concurrency"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         DriverMemory,
		SQLitePath:          "data/boxboard.db",
		Retention:           3,
		TTL:                 6 * time.Hour,
		SchemaVersion:       1,
		FormatterVersion:    1,
		ComputeDir:          "data/compute",
		ComputeLatencyMinMS: 0,
		ComputeLatencyMaxMS: 0,
		RefreshWorkerCount:  4,
		RefreshQueueSize:    1024,
		PendingLimit:        10_000,
		BatchConcurrency:    4,
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if !slices.Contains([]string{DriverMemory, DriverSQLite}, c.StoreDriver) {
		problems = append(problems, fmt.Sprintf("store_driver %q must be memory or sqlite", c.StoreDriver))
	}
	if c.StoreDriver == DriverSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		problems = append(problems, "sqlite_path is required for the sqlite driver")
	}
	if c.Retention < 1 {
		problems = append(problems, "retention must be at least 1")
	}
	if c.TTL <= 0 {
		problems = append(problems, "ttl must be positive")
	}
	if c.SchemaVersion < 1 || c.FormatterVersion < 1 {
		problems = append(problems, "schema_version and formatter_version must be at least 1")
	}
	if c.ComputeLatencyMinMS < 0 || c.ComputeLatencyMaxMS < c.ComputeLatencyMinMS {
		problems = append(problems, "compute latency range is invalid")
	}
	if c.RefreshWorkerCount < 1 || c.RefreshQueueSize < 1 {
		problems = append(problems, "refresh_worker_count and refresh_queue_size must be positive")
	}
	if c.BatchConcurrency < 1 {
		problems = append(problems, "batch_concurrency must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ComputeLatency returns the simulated compute latency range.
func (c *Config) ComputeLatency() (minLatency, maxLatency time.Duration) {
	return time.Duration(c.ComputeLatencyMinMS) * time.Millisecond,
		time.Duration(c.ComputeLatencyMaxMS) * time.Millisecond
}

// CleanStatKeys returns StatKeys trimmed, without empties or duplicates.
// Entries may themselves be comma lists, as they arrive from env vars.
func (c *Config) CleanStatKeys() []string {
	var out []string
	for _, entry := range c.StatKeys {
		for _, k := range strings.Split(entry, ",") {
			k = strings.TrimSpace(k)
			if k != "" && !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
	}
	return out
}
