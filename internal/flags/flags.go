package flags

// Package flags defines canonical CLI flag names shared across the CLI.
// Keeping these as constants helps avoid drift between Cobra flag wiring and
// other code paths that need to reference flags (e.g. error messages pointing
// at the flag to set).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Backend.BaseURL, flags.FlagBaseURL, "", "...")
//	arg := "--" + flags.FlagBaseURL
const (
	// Target
	FlagLogin       = "login"
	FlagMaxEvaluate = "max-evaluate"

	// Backend
	FlagBaseURL     = "base-url"
	FlagToken       = "token"
	FlagRetries     = "retries"
	FlagRetryDelay  = "retry-delay"
	FlagCallTimeout = "call-timeout"
	FlagCacheTTL    = "cache-ttl"

	// Polling
	FlagPollInterval = "poll-interval"
	FlagStallLimit   = "stall-limit"

	// Sync
	FlagNoSync       = "no-sync"
	FlagSyncDebounce = "sync-debounce"
	FlagSyncRetries  = "sync-retries"

	// Storage
	FlagStore        = "store"
	FlagHistoryLimit = "history-limit"

	// Output
	FlagFormat    = "format"
	FlagReport    = "report"
	FlagOut       = "out"
	FlagOutFormat = "out-format"
	FlagEmit      = "emit"
	FlagNoConsole = "no-console"
	FlagNoColor   = "no-color"

	// Logging
	FlagLogLevel = "log-level"
	FlagLogFile  = "log-file"

	// Runtime
	FlagConfig  = "config"
	FlagTimeout = "timeout"
	FlagVerbose = "verbose"
)
