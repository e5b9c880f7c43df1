package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate_NormalizesLoginFromGitHubURLs(t *testing.T) {
	tests := []struct {
		name  string
		login string
		want  string
	}{
		{name: "raw_name", login: "octocat", want: "octocat"},
		{name: "https_url", login: "https://github.com/octocat", want: "octocat"},
		{name: "bare_url", login: "github.com/octocat", want: "octocat"},
		{name: "users_url", login: "https://github.com/users/octocat", want: "octocat"},
		{name: "orgs_url", login: "https://github.com/orgs/acme", want: "acme"},
		{name: "www_host", login: "www.github.com/octocat", want: "octocat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Backend.BaseURL = "https://api.example.com"
			cfg.Target.Login = tt.login
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if cfg.Target.Login != tt.want {
				t.Fatalf("expected login to normalize to %q, got %q", tt.want, cfg.Target.Login)
			}
		})
	}
}

func TestNormalizeLogin_RejectsRepoLikeInputs(t *testing.T) {
	tests := []struct {
		name  string
		login string
	}{
		{name: "owner_repo", login: "octocat/hello-world"},
		{name: "foreign_host", login: "https://gitlab.com/octocat"},
		{name: "bare_orgs_url", login: "https://github.com/orgs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizeLogin(tt.login); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_RequiresBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "empty", baseURL: ""},
		{name: "spaces", baseURL: "   "},
		{name: "relative", baseURL: "/api/v1"},
		{name: "no_host", baseURL: "https://"},
		{name: "bad_scheme", baseURL: "ftp://api.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Backend.BaseURL = tt.baseURL
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidateOffline_SkipsBackendChecks(t *testing.T) {
	cfg := New()
	// No base URL configured; offline validation must still pass so local
	// commands (results, history) work without one.
	if err := cfg.ValidateOffline(); err != nil {
		t.Fatalf("ValidateOffline returned error: %v", err)
	}

	cfg.Storage.HistoryLimit = 0
	if err := cfg.ValidateOffline(); err == nil {
		t.Fatalf("expected error for zero history limit, got nil")
	}
}

func TestValidate_RejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{
			name: "negative_max_evaluate",
			mutateCfg: func(cfg *Config) {
				cfg.Target.MaxEvaluate = -1
			},
		},
		{
			name: "zero_retries",
			mutateCfg: func(cfg *Config) {
				cfg.Backend.Retries = 0
			},
		},
		{
			name: "zero_retry_delay",
			mutateCfg: func(cfg *Config) {
				cfg.Backend.RetryDelay = 0
			},
		},
		{
			name: "zero_call_timeout",
			mutateCfg: func(cfg *Config) {
				cfg.Backend.Timeout = 0
			},
		},
		{
			name: "negative_cache_ttl",
			mutateCfg: func(cfg *Config) {
				cfg.Backend.CacheTTL = -time.Second
			},
		},
		{
			name: "zero_poll_interval",
			mutateCfg: func(cfg *Config) {
				cfg.Polling.Interval = 0
			},
		},
		{
			name: "zero_stall_limit",
			mutateCfg: func(cfg *Config) {
				cfg.Polling.StallLimit = 0
			},
		},
		{
			name: "negative_sync_debounce",
			mutateCfg: func(cfg *Config) {
				cfg.Sync.DebounceWindow = -time.Second
			},
		},
		{
			name: "negative_sync_retries",
			mutateCfg: func(cfg *Config) {
				cfg.Sync.MaxRetries = -1
			},
		},
		{
			name: "zero_history_limit",
			mutateCfg: func(cfg *Config) {
				cfg.Storage.HistoryLimit = 0
			},
		},
		{
			name: "negative_timeout",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.Timeout = -1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Backend.BaseURL = "https://api.example.com"
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_NormalizesOutputAndLoggingEnums(t *testing.T) {
	cfg := New()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Output.Format = "  JSON "
	cfg.Logging.Level = " Debug "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Output.Format != "json" {
		t.Fatalf("expected format to normalize to %q, got %q", "json", cfg.Output.Format)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level to normalize to %q, got %q", "debug", cfg.Logging.Level)
	}
}

func TestValidate_DefaultsEmptyEnums(t *testing.T) {
	cfg := New()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Output.Format = "   "
	cfg.Logging.Level = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Output.Format != "text" {
		t.Fatalf("expected format to default to %q, got %q", "text", cfg.Output.Format)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected level to default to %q, got %q", "info", cfg.Logging.Level)
	}
}

func TestValidate_RejectsUnknownEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{
			name: "format",
			mutateCfg: func(cfg *Config) {
				cfg.Output.Format = "yaml"
			},
		},
		{
			name: "level",
			mutateCfg: func(cfg *Config) {
				cfg.Logging.Level = "trace"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Backend.BaseURL = "https://api.example.com"
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_NormalizesCommaDelimitedEmit(t *testing.T) {
	cfg := New()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Output.Emit = []string{"json, ndjson", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"json", "ndjson"}
	if len(cfg.Output.Emit) != len(want) {
		t.Fatalf("Emit normalized mismatch: got %v want %v", cfg.Output.Emit, want)
	}
	for i := range want {
		if cfg.Output.Emit[i] != want[i] {
			t.Fatalf("Emit normalized mismatch: got %v want %v", cfg.Output.Emit, want)
		}
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	cfg := New()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Output.Emit = []string{"yaml"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_InfersOutFormatFromExtension(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "json_ext", out: "results.json", want: "json"},
		{name: "ndjson_ext", out: "results.ndjson", want: "ndjson"},
		{name: "jsonl_ext", out: "results.jsonl", want: "ndjson"},
		{name: "unknown_ext", out: "results.txt", wantErr: true},
		{name: "missing_ext", out: "results", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Backend.BaseURL = "https://api.example.com"
			cfg.Output.Out = tt.out
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if cfg.Output.OutFormat != tt.want {
				t.Fatalf("expected out format %q, got %q", tt.want, cfg.Output.OutFormat)
			}
		})
	}
}

func TestApplyEnv_OverlaysEnvironment(t *testing.T) {
	t.Setenv("BROSKIES_BASE_URL", "https://env.example.com")
	t.Setenv("BROSKIES_POLL_INTERVAL", "5s")
	t.Setenv("BROSKIES_MAX_EVALUATE", "7")
	t.Setenv("BROSKIES_NO_SYNC", "true")

	cfg := New()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Fatalf("expected base URL from env, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Polling.Interval != 5*time.Second {
		t.Fatalf("expected poll interval 5s, got %s", cfg.Polling.Interval)
	}
	if cfg.Target.MaxEvaluate != 7 {
		t.Fatalf("expected max evaluate 7, got %d", cfg.Target.MaxEvaluate)
	}
	if !cfg.Sync.Disabled {
		t.Fatalf("expected sync disabled from env")
	}
	// Unset variables leave defaults alone.
	if cfg.Backend.Retries != 3 {
		t.Fatalf("expected default retries 3, got %d", cfg.Backend.Retries)
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broskies.yml")
	content := `login: https://github.com/octocat
backend:
  base_url: https://file.example.com
  retry_delay: 250ms
polling:
  interval: 3s
  stall_limit: 8
storage:
  path: /tmp/cards.db
output:
  format: json
runtime:
  verbose: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg := New()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "https://file.example.com" {
		t.Fatalf("expected base URL from file, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RetryDelay != 250*time.Millisecond {
		t.Fatalf("expected retry delay 250ms, got %s", cfg.Backend.RetryDelay)
	}
	if cfg.Polling.Interval != 3*time.Second {
		t.Fatalf("expected poll interval 3s, got %s", cfg.Polling.Interval)
	}
	if cfg.Polling.StallLimit != 8 {
		t.Fatalf("expected stall limit 8, got %d", cfg.Polling.StallLimit)
	}
	if cfg.Storage.Path != "/tmp/cards.db" {
		t.Fatalf("expected store path from file, got %q", cfg.Storage.Path)
	}
	if cfg.Output.Format != "json" {
		t.Fatalf("expected format json, got %q", cfg.Output.Format)
	}
	if !cfg.Runtime.Verbose {
		t.Fatalf("expected verbose from file")
	}
	// Sections the file does not mention keep their defaults.
	if cfg.Sync.DebounceWindow != 2*time.Second {
		t.Fatalf("expected default debounce window, got %s", cfg.Sync.DebounceWindow)
	}
	if cfg.Storage.HistoryLimit != 10 {
		t.Fatalf("expected default history limit, got %d", cfg.Storage.HistoryLimit)
	}

	// The login selector still normalizes through Validate.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Target.Login != "octocat" {
		t.Fatalf("expected login to normalize to %q, got %q", "octocat", cfg.Target.Login)
	}
}

func TestLoadFile_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broskies.yml")
	content := "polling:\n  interval: soonish\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg := New()
	if err := cfg.LoadFile(path); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	cfg := New()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
