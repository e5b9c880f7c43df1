package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/config"
	"github.com/raseen2305/broskies-1-sub002/internal/flags"
	"github.com/raseen2305/broskies-1-sub002/internal/logging"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var (
	cfg     = config.New()
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "broskies",
	Short: "Analyze a GitHub account and keep its scorecard in sync",
	Long: `Broskies analyzes a GitHub account through a scoring backend and tracks
the resulting scorecard locally.

An analysis is a long-running backend job: broskies starts it, polls it
through its phases, merges the results into a locally persisted scorecard,
and pushes the final score to the backend leaderboard.

Examples:
	# Show available commands and global flags
	broskies --help

	# Analyze an account
	broskies analyze octocat

	# Show the stored scorecard
	broskies results octocat

	# Print build info
	broskies version

Output:
	By default, commands write human-readable output to stdout.
	Structured output is available via --format, --emit and --out
	(see 'broskies analyze --help').`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, flags.FlagConfig, "", "Path to a YAML config file (overridden by environment and flags)")
	pf.StringVar(&cfg.Target.Login, flags.FlagLogin, "", "GitHub account to target (name or URL); commands that take a login argument default to this")
	pf.StringVar(&cfg.Backend.BaseURL, flags.FlagBaseURL, "", "Analysis backend base URL (required for backend commands)")
	pf.StringVar(&cfg.Backend.Token, flags.FlagToken, "", "Bearer token for the backend (default: GitHub token resolution)")
	pf.IntVar(&cfg.Backend.Retries, flags.FlagRetries, cfg.Backend.Retries, "Attempt budget for retryable backend calls")
	pf.DurationVar(&cfg.Backend.RetryDelay, flags.FlagRetryDelay, cfg.Backend.RetryDelay, "Delay before the first retry; doubles with each further attempt")
	pf.DurationVar(&cfg.Backend.Timeout, flags.FlagCallTimeout, cfg.Backend.Timeout, "Per-attempt timeout for backend calls")
	pf.DurationVar(&cfg.Backend.CacheTTL, flags.FlagCacheTTL, cfg.Backend.CacheTTL, "How long cacheable backend responses are reused (0 disables)")
	pf.StringVar(&cfg.Storage.Path, flags.FlagStore, "", "Path to the local scorecard database (default: ~/.broskies/broskies.db)")
	pf.StringVar(&cfg.Output.Format, flags.FlagFormat, cfg.Output.Format, "Console output format: text|json|ndjson")
	pf.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	pf.BoolVar(&cfg.Output.NoColor, flags.FlagNoColor, false, "Disable ANSI colors in console output")
	pf.StringVar(&cfg.Logging.Level, flags.FlagLogLevel, cfg.Logging.Level, "Minimum log level: debug|info|warn|error")
	pf.StringVar(&cfg.Logging.File, flags.FlagLogFile, "", "Append logs to this file with rotation (default: stderr only)")
	pf.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Overall time budget for a command")
	pf.BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every backend and GitHub API call)")
}

// initRun finalizes configuration for a command run: config file and
// environment overlays (explicit flags win), validation, logging, color.
// Commands that never talk to the backend pass offline=true so they work
// without a base URL.
func initRun(cmd *cobra.Command, offline bool) error {
	layered := config.New()
	if cfgFile != "" {
		if err := layered.LoadFile(cfgFile); err != nil {
			return err
		}
	}
	if err := layered.ApplyEnv(); err != nil {
		return err
	}
	applyUnsetFlags(cmd, cfg, layered)

	var err error
	if offline {
		err = cfg.ValidateOffline()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	if cfg.Output.NoColor {
		color.NoColor = true
	}

	level := cfg.Logging.Level
	if cfg.Runtime.Verbose {
		level = "debug"
	}
	logger, err = logging.Setup(level, cfg.Logging.File, cfg.Output.NoColor)
	return err
}

// applyUnsetFlags copies layered values (file + environment over defaults)
// into dst for every field whose flag the user did not set, so explicit
// flags keep precedence over the other configuration sources.
func applyUnsetFlags(cmd *cobra.Command, dst, layered *config.Config) {
	fs := cmd.Flags()

	if !fs.Changed(flags.FlagLogin) {
		dst.Target.Login = layered.Target.Login
	}
	if !fs.Changed(flags.FlagMaxEvaluate) {
		dst.Target.MaxEvaluate = layered.Target.MaxEvaluate
	}

	if !fs.Changed(flags.FlagBaseURL) {
		dst.Backend.BaseURL = layered.Backend.BaseURL
	}
	if !fs.Changed(flags.FlagToken) {
		dst.Backend.Token = layered.Backend.Token
	}
	if !fs.Changed(flags.FlagRetries) {
		dst.Backend.Retries = layered.Backend.Retries
	}
	if !fs.Changed(flags.FlagRetryDelay) {
		dst.Backend.RetryDelay = layered.Backend.RetryDelay
	}
	if !fs.Changed(flags.FlagCallTimeout) {
		dst.Backend.Timeout = layered.Backend.Timeout
	}
	if !fs.Changed(flags.FlagCacheTTL) {
		dst.Backend.CacheTTL = layered.Backend.CacheTTL
	}

	if !fs.Changed(flags.FlagPollInterval) {
		dst.Polling.Interval = layered.Polling.Interval
	}
	if !fs.Changed(flags.FlagStallLimit) {
		dst.Polling.StallLimit = layered.Polling.StallLimit
	}

	if !fs.Changed(flags.FlagNoSync) {
		dst.Sync.Disabled = layered.Sync.Disabled
	}
	if !fs.Changed(flags.FlagSyncDebounce) {
		dst.Sync.DebounceWindow = layered.Sync.DebounceWindow
	}
	if !fs.Changed(flags.FlagSyncRetries) {
		dst.Sync.MaxRetries = layered.Sync.MaxRetries
	}

	if !fs.Changed(flags.FlagStore) {
		dst.Storage.Path = layered.Storage.Path
	}
	if !fs.Changed(flags.FlagHistoryLimit) {
		dst.Storage.HistoryLimit = layered.Storage.HistoryLimit
	}

	if !fs.Changed(flags.FlagFormat) {
		dst.Output.Format = layered.Output.Format
	}
	if !fs.Changed(flags.FlagReport) {
		dst.Output.Report = layered.Output.Report
	}
	if !fs.Changed(flags.FlagOut) {
		dst.Output.Out = layered.Output.Out
	}
	if !fs.Changed(flags.FlagOutFormat) {
		dst.Output.OutFormat = layered.Output.OutFormat
	}
	if !fs.Changed(flags.FlagEmit) {
		dst.Output.Emit = layered.Output.Emit
	}
	if !fs.Changed(flags.FlagNoConsole) {
		dst.Output.NoConsole = layered.Output.NoConsole
	}
	if !fs.Changed(flags.FlagNoColor) {
		dst.Output.NoColor = layered.Output.NoColor
	}

	if !fs.Changed(flags.FlagLogLevel) {
		dst.Logging.Level = layered.Logging.Level
	}
	if !fs.Changed(flags.FlagLogFile) {
		dst.Logging.File = layered.Logging.File
	}

	if !fs.Changed(flags.FlagTimeout) {
		dst.Runtime.Timeout = layered.Runtime.Timeout
	}
	if !fs.Changed(flags.FlagVerbose) {
		dst.Runtime.Verbose = layered.Runtime.Verbose
	}
}

// loginFromArgs resolves the effective target login: a positional argument
// wins over the configured one.
func loginFromArgs(args []string) (string, error) {
	if len(args) == 0 {
		return cfg.Target.Login, nil
	}
	login, err := config.NormalizeLogin(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid login argument: %w", err)
	}
	return login, nil
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
