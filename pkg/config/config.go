// Package config provides configuration file support for taskstate.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jvs-project/taskstate/pkg/errclass"
	"github.com/jvs-project/taskstate/pkg/fsutil"
	"github.com/jvs-project/taskstate/pkg/model"
)

// StateDirName is the per-project directory holding records, locks,
// audit log and configuration.
const StateDirName = ".taskstate"

// Config represents the taskstate configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Capture   CaptureConfig   `yaml:"capture"`
	Lock      LockConfig      `yaml:"lock"`
	Reporting ReportingConfig `yaml:"reporting"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend model.StoreBackend `yaml:"backend"`
	// Path is relative to the state directory unless absolute.
	Path string `yaml:"path"`
}

// CaptureConfig tunes filesystem capture.
type CaptureConfig struct {
	HashCacheSize int  `yaml:"hash_cache_size"`
	SnapshotReuse bool `yaml:"snapshot_reuse"`
}

// LockConfig configures per-task leases.
type LockConfig struct {
	LeaseTTL string `yaml:"lease_ttl"`
}

// ReportingConfig bounds change reporting.
type ReportingConfig struct {
	MaxReasons int `yaml:"max_reasons"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// WebhooksConfig lists endpoints notified of task outcomes. Hooks are edited
// in the file only.
type WebhooksConfig struct {
	Hooks      []HookConfig `yaml:"hooks,omitempty"`
	MaxRetries int          `yaml:"max_retries"`
	RetryDelay string       `yaml:"retry_delay"`
}

// HookConfig is one webhook endpoint. No events means all events.
type HookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: model.StoreBackendFile,
			Path:    "records",
		},
		Capture: CaptureConfig{
			HashCacheSize: 4096,
			SnapshotReuse: false,
		},
		Lock: LockConfig{
			LeaseTTL: "30m",
		},
		Reporting: ReportingConfig{
			MaxReasons: 3,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Webhooks: WebhooksConfig{
			MaxRetries: 3,
			RetryDelay: "5s",
		},
	}
}

// Path returns the config file location for a project root.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName, "config.yaml")
}

// Load loads configuration from .taskstate/config.yaml.
// Returns default config if file doesn't exist.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(projectRoot))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to .taskstate/config.yaml.
func Save(projectRoot string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsutil.AtomicWrite(Path(projectRoot), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case model.StoreBackendFile, model.StoreBackendSQLite:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("store.backend must be file or sqlite, got %q", c.Store.Backend)
	}
	if c.Store.Path == "" {
		return errclass.ErrConfigInvalid.WithMessage("store.path must not be empty")
	}
	if c.Capture.HashCacheSize < 0 {
		return errclass.ErrConfigInvalid.WithMessagef("capture.hash_cache_size must not be negative, got %d", c.Capture.HashCacheSize)
	}
	if _, err := c.LeaseTTL(); err != nil {
		return err
	}
	if c.Reporting.MaxReasons < 1 {
		return errclass.ErrConfigInvalid.WithMessagef("reporting.max_reasons must be at least 1, got %d", c.Reporting.MaxReasons)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return errclass.ErrConfigInvalid.WithMessage("metrics.listen is required when metrics are enabled")
	}
	if c.Webhooks.MaxRetries < 0 {
		return errclass.ErrConfigInvalid.WithMessagef("webhooks.max_retries must not be negative, got %d", c.Webhooks.MaxRetries)
	}
	if _, err := c.RetryDelay(); err != nil {
		return err
	}
	for i, hook := range c.Webhooks.Hooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errclass.ErrConfigInvalid.WithMessagef("webhooks.hooks[%d].url must be an http(s) URL, got %q", i, hook.URL)
		}
	}
	return nil
}

// RetryDelay parses webhooks.retry_delay.
func (c *Config) RetryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Webhooks.RetryDelay)
	if err != nil {
		return 0, errclass.ErrConfigInvalid.WithMessagef("webhooks.retry_delay: %v", err)
	}
	if d < 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("webhooks.retry_delay must not be negative, got %s", c.Webhooks.RetryDelay)
	}
	return d, nil
}

// LeaseTTL parses lock.lease_ttl.
func (c *Config) LeaseTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Lock.LeaseTTL)
	if err != nil {
		return 0, errclass.ErrConfigInvalid.WithMessagef("lock.lease_ttl: %v", err)
	}
	if d <= 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("lock.lease_ttl must be positive, got %s", c.Lock.LeaseTTL)
	}
	return d, nil
}

// StorePath resolves store.path against the state directory.
func (c *Config) StorePath(projectRoot string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(projectRoot, StateDirName, c.Store.Path)
}

// Keys returns all settable keys in display order.
func Keys() []string {
	return []string{
		"store.backend",
		"store.path",
		"capture.hash_cache_size",
		"capture.snapshot_reuse",
		"lock.lease_ttl",
		"reporting.max_reasons",
		"logging.level",
		"logging.format",
		"metrics.enabled",
		"metrics.listen",
		"webhooks.max_retries",
		"webhooks.retry_delay",
	}
}

// Get returns a configuration value as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "store.backend":
		return string(c.Store.Backend), nil
	case "store.path":
		return c.Store.Path, nil
	case "capture.hash_cache_size":
		return strconv.Itoa(c.Capture.HashCacheSize), nil
	case "capture.snapshot_reuse":
		return strconv.FormatBool(c.Capture.SnapshotReuse), nil
	case "lock.lease_ttl":
		return c.Lock.LeaseTTL, nil
	case "reporting.max_reasons":
		return strconv.Itoa(c.Reporting.MaxReasons), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "metrics.enabled":
		return strconv.FormatBool(c.Metrics.Enabled), nil
	case "metrics.listen":
		return c.Metrics.Listen, nil
	case "webhooks.max_retries":
		return strconv.Itoa(c.Webhooks.MaxRetries), nil
	case "webhooks.retry_delay":
		return c.Webhooks.RetryDelay, nil
	default:
		return "", errclass.ErrConfigInvalid.WithMessagef("unknown config key: %s", key)
	}
}

// Set parses value and assigns it to key. The result is validated; on
// failure the config is left unchanged.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "store.backend":
		next.Store.Backend = model.StoreBackend(value)
	case "store.path":
		next.Store.Path = value
	case "capture.hash_cache_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Capture.HashCacheSize = n
	case "capture.snapshot_reuse":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Capture.SnapshotReuse = b
	case "lock.lease_ttl":
		next.Lock.LeaseTTL = value
	case "reporting.max_reasons":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Reporting.MaxReasons = n
	case "logging.level":
		next.Logging.Level = value
	case "logging.format":
		next.Logging.Format = value
	case "metrics.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Metrics.Enabled = b
	case "metrics.listen":
		next.Metrics.Listen = value
	case "webhooks.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
		}
		next.Webhooks.MaxRetries = n
	case "webhooks.retry_delay":
		next.Webhooks.RetryDelay = value
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown config key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
