package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in
	// sync:
	// - CLI flags in internal/cli/root.go and the per-command files
	// - the YAML mirror in fileConfig below
	Target  Target
	Backend Backend
	Polling Polling
	Sync    Sync
	Storage Storage
	Output  Output
	Logging Logging
	Runtime Runtime
}

type Target struct {
	// Login is the GitHub account to analyze (name or URL; see --login).
	// Commands that take a login argument use it as the default.
	Login string `env:"BROSKIES_LOGIN"`

	// MaxEvaluate caps how many repositories the backend deep-evaluates
	// (see --max-evaluate). 0 lets the backend choose.
	MaxEvaluate int `env:"BROSKIES_MAX_EVALUATE"`
}

type Backend struct {
	// BaseURL is the analysis backend base URL (see --base-url).
	BaseURL string `env:"BROSKIES_BASE_URL"`

	// Token authenticates requests to the backend (see --token).
	// If empty, the GitHub token resolution chain is used.
	Token string `env:"BROSKIES_TOKEN"`

	// Retries is the attempt budget for retryable backend calls (see --retries).
	// Must be >= 1; 1 means no retries.
	Retries int `env:"BROSKIES_RETRIES"`

	// RetryDelay is the delay before the first retry; it doubles with each
	// further attempt (see --retry-delay).
	RetryDelay time.Duration `env:"BROSKIES_RETRY_DELAY"`

	// Timeout bounds each backend call attempt (see --call-timeout).
	Timeout time.Duration `env:"BROSKIES_CALL_TIMEOUT"`

	// CacheTTL controls how long cacheable backend responses are reused
	// (see --cache-ttl). 0 disables response caching.
	CacheTTL time.Duration `env:"BROSKIES_CACHE_TTL"`
}

type Polling struct {
	// Interval is the delay between job status polls (see --poll-interval).
	Interval time.Duration `env:"BROSKIES_POLL_INTERVAL"`

	// StallLimit is how many consecutive status failures abort tracking
	// (see --stall-limit). Must be >= 1.
	StallLimit int `env:"BROSKIES_STALL_LIMIT"`
}

type Sync struct {
	// Disabled turns off the automatic profile sync after a completed
	// analysis (see --no-sync). Manual sync still works.
	Disabled bool `env:"BROSKIES_NO_SYNC"`

	// DebounceWindow drops sync triggers that arrive this soon after a
	// successful sync, and delays the rest by the same amount (see
	// --sync-debounce).
	DebounceWindow time.Duration `env:"BROSKIES_SYNC_DEBOUNCE"`

	// MaxRetries bounds sync retry attempts before the coordinator gives up
	// until the next trigger (see --sync-retries). 0 means fail on the
	// first error.
	MaxRetries int `env:"BROSKIES_SYNC_RETRIES"`
}

type Storage struct {
	// Path locates the local scorecard database (see --store).
	// Empty selects ~/.broskies/broskies.db.
	Path string `env:"BROSKIES_STORE"`

	// HistoryLimit bounds how many prior scorecards are kept per login
	// (see --history-limit). Must be >= 1.
	HistoryLimit int `env:"BROSKIES_HISTORY_LIMIT"`
}

type Output struct {
	// Format controls the console output format (see --format).
	// Allowed values: text, json, ndjson.
	Format string `env:"BROSKIES_FORMAT"`

	// Report writes a Markdown scorecard report to this path (see --report).
	Report string `env:"BROSKIES_REPORT"`

	// Out writes structured output to this path (see --out).
	Out string `env:"BROSKIES_OUT"`

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out
	// file extension.
	OutFormat string `env:"BROSKIES_OUT_FORMAT"`

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string `env:"BROSKIES_EMIT"`

	// NoConsole suppresses the console sink (see --no-console).
	// Use with --emit/--out/--report for machine-readable output.
	NoConsole bool `env:"BROSKIES_NO_CONSOLE"`

	// NoColor disables ANSI colors in console output (see --no-color).
	NoColor bool `env:"BROSKIES_NO_COLOR"`
}

type Logging struct {
	// Level sets the minimum log level (see --log-level).
	// Allowed values: debug, info, warn, error.
	Level string `env:"BROSKIES_LOG_LEVEL"`

	// File appends logs to this path with rotation; empty logs to stderr
	// only (see --log-file).
	File string `env:"BROSKIES_LOG_FILE"`
}

type Runtime struct {
	// Timeout is the overall time budget for a command (see --timeout).
	// Must be > 0.
	Timeout time.Duration `env:"BROSKIES_TIMEOUT"`

	// Verbose logs backend request/response detail (see --verbose).
	Verbose bool `env:"BROSKIES_VERBOSE"`
}

func New() *Config {
	return &Config{
		Backend: Backend{
			Retries:    3,
			RetryDelay: time.Second,
			Timeout:    30 * time.Second,
			CacheTTL:   5 * time.Minute,
		},
		Polling: Polling{
			Interval:   2 * time.Second,
			StallLimit: 5,
		},
		Sync: Sync{
			DebounceWindow: 2 * time.Second,
			MaxRetries:     3,
		},
		Storage: Storage{
			HistoryLimit: 10,
		},
		Output: Output{
			Format: "text",
		},
		Logging: Logging{
			Level: "info",
		},
		Runtime: Runtime{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	return c.validateLocal()
}

// ValidateOffline checks everything except the backend settings. Commands
// that only read the local store use it, so they work without a base URL.
func (c *Config) ValidateOffline() error {
	if err := c.validateTarget(); err != nil {
		return err
	}
	return c.validateLocal()
}

func (c *Config) validateTarget() error {
	// Normalize the account selector.
	if c.Target.Login != "" {
		login, err := NormalizeLogin(c.Target.Login)
		if err != nil {
			return fmt.Errorf("invalid --login value: %w", err)
		}
		c.Target.Login = login
	}
	if c.Target.MaxEvaluate < 0 {
		return errors.New("--max-evaluate must be >= 0")
	}
	return nil
}

func (c *Config) validateBackend() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend base URL is required (--base-url or BROSKIES_BASE_URL)")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid --base-url: %q must be an absolute http(s) URL", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid --base-url scheme: %s (must be http or https)", u.Scheme)
	}
	if c.Backend.Retries < 1 {
		return errors.New("--retries must be >= 1")
	}
	if c.Backend.RetryDelay <= 0 {
		return errors.New("--retry-delay must be > 0")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("--call-timeout must be > 0")
	}
	if c.Backend.CacheTTL < 0 {
		return errors.New("--cache-ttl must be >= 0")
	}
	return nil
}

func (c *Config) validateLocal() error {
	// Polling validation
	if c.Polling.Interval <= 0 {
		return errors.New("--poll-interval must be > 0")
	}
	if c.Polling.StallLimit < 1 {
		return errors.New("--stall-limit must be >= 1")
	}

	// Sync validation
	if c.Sync.DebounceWindow < 0 {
		return errors.New("--sync-debounce must be >= 0")
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("--sync-retries must be >= 0")
	}

	// Storage validation
	if c.Storage.HistoryLimit < 1 {
		return errors.New("--history-limit must be >= 1")
	}

	// Output validation
	c.Output.Emit = splitCommaList(c.Output.Emit)

	c.Output.Format = normalizeEnumValue(c.Output.Format)
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if c.Output.Format != "text" && c.Output.Format != "json" && c.Output.Format != "ndjson" {
		return fmt.Errorf("unsupported --format: %s (must be one of: text, json, ndjson)", c.Output.Format)
	}

	for _, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Logging validation
	c.Logging.Level = normalizeEnumValue(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Logging.Level)
	}

	// Runtime validation
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}

	return nil
}

// ApplyEnv overlays BROSKIES_* environment variables onto c.
// Variables that are unset leave the current value untouched.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFile overlays settings from a YAML config file onto c. Callers decide
// whether a missing file is acceptable.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return f.apply(c)
}

// DefaultStorePath returns the store location used when --store is not set.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".broskies", "broskies.db"), nil
}

// fileConfig mirrors Config for YAML decoding. Durations are strings so the
// file can spell them like "2s" or "5m". Zero values leave the target
// untouched, so the file only ever narrows what it mentions.
type fileConfig struct {
	Login       string `yaml:"login"`
	MaxEvaluate int    `yaml:"max_evaluate"`

	Backend struct {
		BaseURL     string `yaml:"base_url"`
		Token       string `yaml:"token"`
		Retries     int    `yaml:"retries"`
		RetryDelay  string `yaml:"retry_delay"`
		CallTimeout string `yaml:"call_timeout"`
		CacheTTL    string `yaml:"cache_ttl"`
	} `yaml:"backend"`

	Polling struct {
		Interval   string `yaml:"interval"`
		StallLimit int    `yaml:"stall_limit"`
	} `yaml:"polling"`

	Sync struct {
		Disabled   bool   `yaml:"disabled"`
		Debounce   string `yaml:"debounce"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"sync"`

	Storage struct {
		Path         string `yaml:"path"`
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"storage"`

	Output struct {
		Format    string   `yaml:"format"`
		Report    string   `yaml:"report"`
		Out       string   `yaml:"out"`
		OutFormat string   `yaml:"out_format"`
		Emit      []string `yaml:"emit"`
		NoConsole bool     `yaml:"no_console"`
		NoColor   bool     `yaml:"no_color"`
	} `yaml:"output"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Runtime struct {
		Timeout string `yaml:"timeout"`
		Verbose bool   `yaml:"verbose"`
	} `yaml:"runtime"`
}

func (f *fileConfig) apply(c *Config) error {
	if f.Login != "" {
		c.Target.Login = f.Login
	}
	if f.MaxEvaluate != 0 {
		c.Target.MaxEvaluate = f.MaxEvaluate
	}

	if f.Backend.BaseURL != "" {
		c.Backend.BaseURL = f.Backend.BaseURL
	}
	if f.Backend.Token != "" {
		c.Backend.Token = f.Backend.Token
	}
	if f.Backend.Retries != 0 {
		c.Backend.Retries = f.Backend.Retries
	}
	if err := overlayDuration(&c.Backend.RetryDelay, f.Backend.RetryDelay, "backend.retry_delay"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Backend.Timeout, f.Backend.CallTimeout, "backend.call_timeout"); err != nil {
		return err
	}
	if err := overlayDuration(&c.Backend.CacheTTL, f.Backend.CacheTTL, "backend.cache_ttl"); err != nil {
		return err
	}

	if err := overlayDuration(&c.Polling.Interval, f.Polling.Interval, "polling.interval"); err != nil {
		return err
	}
	if f.Polling.StallLimit != 0 {
		c.Polling.StallLimit = f.Polling.StallLimit
	}

	if f.Sync.Disabled {
		c.Sync.Disabled = true
	}
	if err := overlayDuration(&c.Sync.DebounceWindow, f.Sync.Debounce, "sync.debounce"); err != nil {
		return err
	}
	if f.Sync.MaxRetries != 0 {
		c.Sync.MaxRetries = f.Sync.MaxRetries
	}

	if f.Storage.Path != "" {
		c.Storage.Path = f.Storage.Path
	}
	if f.Storage.HistoryLimit != 0 {
		c.Storage.HistoryLimit = f.Storage.HistoryLimit
	}

	if f.Output.Format != "" {
		c.Output.Format = f.Output.Format
	}
	if f.Output.Report != "" {
		c.Output.Report = f.Output.Report
	}
	if f.Output.Out != "" {
		c.Output.Out = f.Output.Out
	}
	if f.Output.OutFormat != "" {
		c.Output.OutFormat = f.Output.OutFormat
	}
	if len(f.Output.Emit) > 0 {
		c.Output.Emit = f.Output.Emit
	}
	if f.Output.NoConsole {
		c.Output.NoConsole = true
	}
	if f.Output.NoColor {
		c.Output.NoColor = true
	}

	if f.Logging.Level != "" {
		c.Logging.Level = f.Logging.Level
	}
	if f.Logging.File != "" {
		c.Logging.File = f.Logging.File
	}

	if err := overlayDuration(&c.Runtime.Timeout, f.Runtime.Timeout, "runtime.timeout"); err != nil {
		return err
	}
	if f.Runtime.Verbose {
		c.Runtime.Verbose = true
	}

	return nil
}

func overlayDuration(dst *time.Duration, raw, key string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// NormalizeLogin turns an account selector into a bare login.
func NormalizeLogin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	// Accept a raw account name, or a GitHub URL like:
	//   https://github.com/<name>
	//   https://github.com/orgs/<name>
	//   https://github.com/users/<name>
	//   github.com/<name>
	if strings.HasPrefix(raw, "github.com/") || strings.HasPrefix(raw, "www.github.com/") {
		raw = "https://" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", raw, err)
		}
		host := strings.ToLower(u.Hostname())
		if host == "www.github.com" {
			host = "github.com"
		}
		if host != "github.com" {
			return "", fmt.Errorf("%q is not a github.com URL", raw)
		}
		parts := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
		if len(parts) == 0 {
			return "", fmt.Errorf("%q has no account in its path", raw)
		}
		if parts[0] == "orgs" || parts[0] == "users" {
			if len(parts) < 2 {
				return "", fmt.Errorf("%q has no account in its path", raw)
			}
			return parts[1], nil
		}
		return parts[0], nil
	}

	// Basic sanity: reject obvious repo-like inputs.
	if strings.Contains(raw, "/") {
		return "", fmt.Errorf("%q looks like a repository, not an account", raw)
	}
	return raw, nil
}
