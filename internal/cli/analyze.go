package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/config"
	"github.com/raseen2305/broskies-1-sub002/internal/events"
	"github.com/raseen2305/broskies-1-sub002/internal/executor"
	"github.com/raseen2305/broskies-1-sub002/internal/flags"
	gh "github.com/raseen2305/broskies-1-sub002/internal/github"
	"github.com/raseen2305/broskies-1-sub002/internal/logging"
	"github.com/raseen2305/broskies-1-sub002/internal/output"
	"github.com/raseen2305/broskies-1-sub002/internal/store"
	"github.com/raseen2305/broskies-1-sub002/internal/syncer"
	"github.com/raseen2305/broskies-1-sub002/internal/tracker"
)

var analyzeNoPreflight bool

const analyzeHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Broskies authenticates with a GitHub access token; the backend uses the
	same token as its bearer identity.

	Sources (in order):
	1) --token / BROSKIES_TOKEN
	2) GITHUB_TOKEN environment variable
	3) GitHub CLI (gh) authentication via gh auth token (if gh is installed
	   and logged in)

	Every flag has a BROSKIES_* environment twin (BROSKIES_BASE_URL,
	BROSKIES_LOGIN, BROSKIES_POLL_INTERVAL, ...); flags win over the
	environment, which wins over --config.

  Examples:
    # macOS/Linux
    export BROSKIES_BASE_URL="https://broskies.example.com/api"
    export GITHUB_TOKEN="<your_token>"
    broskies analyze octocat

		# GitHub CLI auth
		gh auth login
		broskies analyze octocat

    # Windows PowerShell
    $env:GITHUB_TOKEN = "<your_token>"
    broskies analyze octocat

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var analyzeCmd = &cobra.Command{
	Use:   "analyze [login]",
	Short: "Run a full analysis of a GitHub account",
	Long: `Run a full analysis of a GitHub account and track it to completion.

The backend walks the account's repositories in phases (started, scoring,
categorizing, evaluating, calculating); broskies polls the job, streams
progress, merges the results into the locally persisted scorecard, and
pushes the final score to the leaderboard unless --no-sync is set.

Output:
	Console output is controlled by --format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON scorecard or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown scorecard report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events
	with a "type" field (run.started, job.progress, job.completed, job.failed,
	sync.result, scorecard.updated). The final scorecard is represented as an
	Event with type "scorecard.updated" and a nested "card" object.

Exit codes:
	0 = analysis complete
	1 = analysis failed (job failed or status polling stalled)
	2 = analysis complete with partial results (some repositories not evaluated)
	3 = fatal error (analysis did not start)

Examples:
  # Token via environment variable
  export GITHUB_TOKEN="<your_token>"
  broskies analyze octocat

  # Token via GitHub CLI auth
  gh auth login
	broskies analyze https://github.com/octocat

	# AI Agent: stream machine-readable events to stdout
	broskies analyze octocat --no-console --emit ndjson
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 && os.Getenv("BROSKIES_LOGIN") == "" {
			_ = cmd.Help()
			return
		}

		if err := initRun(cmd, false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		login, err := loginFromArgs(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		if login == "" {
			fmt.Fprintln(os.Stderr, "Error: a target login is required (pass an argument, or set --login or BROSKIES_LOGIN)")
			os.Exit(3)
		}

		code := runAnalyze(context.Background(), login)
		logging.Close()
		os.Exit(code)
	},
}

func runAnalyze(parent context.Context, login string) int {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	token, source, err := gh.ResolveToken(ctx, cfg.Backend.Token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve auth token: %v\n", err)
		return 3
	}
	if token == "" {
		logger.Debug("no auth token resolved; requests are unauthenticated")
	} else {
		logger.Debug("auth token resolved", "source", string(source))
	}

	if !analyzeNoPreflight {
		if code := preflightAccount(ctx, token, login); code != 0 {
			return code
		}
	}

	client, err := api.NewClient(cfg.Backend.BaseURL, token, api.WithVerbose(cfg.Runtime.Verbose, nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	exec := executor.New()

	storePath, err := resolveStorePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: create store directory: %v\n", err)
		return 3
	}
	st, err := store.Open(storePath, store.WithHistoryLimit(cfg.Storage.HistoryLimit))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	defer func() { _ = st.Close() }()

	bus := events.NewBus()
	trk, err := tracker.New(client, exec, st, bus, tracker.Config{
		PollInterval: cfg.Polling.Interval,
		StallLimit:   cfg.Polling.StallLimit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	defer trk.Close()

	var coord *syncer.Coordinator
	if !cfg.Sync.Disabled {
		coord, err = syncer.New(client, exec, bus, syncer.Config{
			DebounceWindow: cfg.Sync.DebounceWindow,
			MaxRetries:     cfg.Sync.MaxRetries,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 3
		}
		coord.Start(ctx)
		defer coord.Close()
	}

	sinks, err := buildSinks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	accepted, err := startAnalysis(ctx, exec, client, login)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: start analysis: %v\n", err)
		return 3
	}
	logger.Info("analysis started",
		"login", login,
		"job_id", accepted.JobID,
		"total_repos", accepted.TotalRepos,
		"to_evaluate", accepted.ToEvaluate)
	_ = sinks.Write(output.Event{Type: "run.started", Login: login, JobID: accepted.JobID})

	session, err := trk.Track(ctx, accepted.JobID, login)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	for upd := range session.Updates() {
		_ = sinks.Write(progressEvent(upd))
	}
	out := <-session.Done()

	exit := 0
	switch {
	case out.Err != nil:
		_ = sinks.Write(output.Event{
			Type:     "job.failed",
			Login:    out.Login,
			JobID:    out.JobID,
			Message:  failureMessage(out.Err),
			Progress: &out.Progress,
		})
		logger.Error("analysis failed", "job_id", out.JobID, "error", out.Err)
		exit = 1

	default:
		evt := output.Event{
			Type:     "job.completed",
			Login:    out.Login,
			JobID:    out.JobID,
			Partial:  out.Partial,
			Missing:  out.Missing,
			Progress: &out.Progress,
		}
		if out.Card != nil {
			evt.Score = out.Card.Score
		}
		_ = sinks.Write(evt)
		_ = sinks.Write(out.Card)
		logger.Info("analysis complete",
			"job_id", out.JobID,
			"score", evt.Score,
			"partial", out.Partial)
		if out.Partial {
			exit = 2
		}
	}

	if coord != nil && out.Err == nil {
		maybePrintSyncNotice(ctx, st)
		if res, ok := awaitSync(ctx, coord); !ok {
			logger.Warn("gave up waiting for the leaderboard sync", "cause", ctx.Err())
		} else if res.Err != nil {
			_ = sinks.Write(output.Event{Type: "sync.result", Login: login, Message: res.Err.Error()})
			logger.Warn("leaderboard sync failed", "attempts", res.Attempts, "error", res.Err)
		} else {
			_ = sinks.Write(output.Event{
				Type:    "sync.result",
				Login:   login,
				Message: fmt.Sprintf("score pushed at %s", res.SyncedAt.Format(time.RFC3339)),
			})
			logger.Info("leaderboard sync complete", "attempts", res.Attempts)
		}
	}

	logger.Debug("call cache at exit",
		"entries", exec.CacheSize(),
		"cooldown", exec.CooldownRemaining())

	if err := sinks.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exit == 0 {
			exit = 3
		}
	}
	return exit
}

// preflightAccount resolves the target account on GitHub before the backend
// is asked to analyze it, so typos fail fast. Only a confirmed "no such
// account" is fatal; any other failure is the backend's call to make.
func preflightAccount(ctx context.Context, token, login string) int {
	ghc, err := gh.NewClient(ctx, token, gh.WithVerbose(cfg.Runtime.Verbose, nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	account, err := ghc.ResolveAccount(ctx, login)
	switch {
	case errors.Is(err, gh.ErrAccountNotFound):
		fmt.Fprintf(os.Stderr, "Error: GitHub account %q was not found\n", login)
		return 3
	case err != nil:
		logger.Warn("account preflight failed; proceeding anyway", "login", login, "error", err)
		return 0
	}

	logger.Info("account resolved",
		"login", account.Login,
		"type", account.Type,
		"public_repos", account.PublicRepos,
		"followers", account.Followers)

	if token != "" {
		if contrib, err := ghc.Contributions(ctx, account.Login); err != nil {
			logger.Debug("contributions lookup failed", "error", err)
		} else {
			logger.Debug("contributions over the last year",
				"commits", contrib.Commits,
				"pull_requests", contrib.PullRequests,
				"issues", contrib.Issues,
				"reviews", contrib.Reviews)
		}
	}
	return 0
}

func startAnalysis(ctx context.Context, exec *executor.Executor, client *api.Client, login string) (*api.AnalysisAccepted, error) {
	val, err := exec.Do(ctx, func(ctx context.Context) (any, error) {
		return client.StartAnalysis(ctx, api.AnalysisRequest{
			Login:       login,
			MaxEvaluate: cfg.Target.MaxEvaluate,
		})
	}, executor.Options{
		Retries:    cfg.Backend.Retries,
		RetryDelay: cfg.Backend.RetryDelay,
		Timeout:    cfg.Backend.Timeout,
	})
	if err != nil {
		return nil, err
	}
	accepted, ok := val.(*api.AnalysisAccepted)
	if !ok || accepted == nil {
		return nil, fmt.Errorf("unexpected analysis payload %T", val)
	}
	return accepted, nil
}

func progressEvent(upd tracker.Update) output.Event {
	prog := upd.Progress
	return output.Event{
		Type:       "job.progress",
		Login:      upd.Login,
		JobID:      upd.JobID,
		Phase:      upd.Phase.String(),
		Percentage: upd.Percentage,
		Progress:   &prog,
		Message:    upd.Message,
	}
}

func failureMessage(err error) string {
	if je, ok := tracker.AsJobError(err); ok {
		msg := je.Message
		if msg == "" {
			msg = "analysis job failed"
		}
		if je.Detail != "" && je.Detail != msg {
			msg = msg + ": " + je.Detail
		}
		return msg
	}
	return err.Error()
}

// awaitSync waits for the one sync cycle triggered by the completion event.
// The command context bounds the wait.
func awaitSync(ctx context.Context, coord *syncer.Coordinator) (syncer.Result, bool) {
	select {
	case res := <-coord.Results():
		return res, true
	case <-ctx.Done():
		return syncer.Result{}, false
	}
}

const syncNoticeFlag = "sync-autopush-notice"

// maybePrintSyncNotice tells first-time users that completed analyses push
// the score upstream. Shown once; the dismissal is recorded in the store.
func maybePrintSyncNotice(ctx context.Context, st *store.Store) {
	if cfg.Output.NoConsole || cfg.Output.Format != "text" {
		return
	}
	if dismissed, err := st.Dismissed(ctx, syncNoticeFlag); err != nil || dismissed {
		return
	}
	fmt.Fprintln(os.Stderr, "note: completed analyses push your score to the leaderboard; use --no-sync to keep a run local (shown once)")
	_ = st.SetDismissed(ctx, syncNoticeFlag, true)
}

// buildSinks assembles the output pipeline from the configuration: the
// console sink unless suppressed, any --emit streams, the --out file, and
// the --report Markdown file.
func buildSinks() (*output.Manager, error) {
	m := output.NewManager()

	if !cfg.Output.NoConsole {
		if err := m.AddSink(output.NewConsoleSink(os.Stdout, cfg.Output.Format)); err != nil {
			return nil, err
		}
	}
	for _, format := range cfg.Output.Emit {
		s, err := output.NewEmitSink(os.Stdout, format)
		if err != nil {
			return nil, err
		}
		if err := m.AddSink(s); err != nil {
			return nil, err
		}
	}
	if cfg.Output.Out != "" {
		s, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			return nil, err
		}
		if err := m.AddSink(s); err != nil {
			return nil, err
		}
	}
	if cfg.Output.Report != "" {
		s, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			return nil, err
		}
		if err := m.AddSink(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func resolveStorePath() (string, error) {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path, nil
	}
	return config.DefaultStorePath()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.SetHelpTemplate(analyzeHelpTemplate)

	f := analyzeCmd.Flags()
	f.IntVar(&cfg.Target.MaxEvaluate, flags.FlagMaxEvaluate, 0, "Cap how many repositories the backend deep-evaluates (0 = backend default)")
	f.DurationVar(&cfg.Polling.Interval, flags.FlagPollInterval, cfg.Polling.Interval, "Delay between job status polls")
	f.IntVar(&cfg.Polling.StallLimit, flags.FlagStallLimit, cfg.Polling.StallLimit, "Consecutive status failures before tracking aborts")
	f.BoolVar(&cfg.Sync.Disabled, flags.FlagNoSync, false, "Skip the automatic leaderboard sync after completion")
	f.DurationVar(&cfg.Sync.DebounceWindow, flags.FlagSyncDebounce, cfg.Sync.DebounceWindow, "Debounce window for sync triggers")
	f.IntVar(&cfg.Sync.MaxRetries, flags.FlagSyncRetries, cfg.Sync.MaxRetries, "Sync retry budget before giving up until the next trigger")
	f.IntVar(&cfg.Storage.HistoryLimit, flags.FlagHistoryLimit, cfg.Storage.HistoryLimit, "Prior scorecards kept per login")
	f.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown scorecard report to this path")
	f.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit an additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	f.BoolVar(&analyzeNoPreflight, "no-preflight", false, "Skip resolving the account on GitHub before starting the analysis")
}
