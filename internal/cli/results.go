package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/flags"
	"github.com/raseen2305/broskies-1-sub002/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results [login]",
	Short: "Show the locally stored scorecard for an account",
	Long: `Show the locally stored scorecard for an account.

Reads the scorecard last merged by 'broskies analyze'; no backend calls are
made. The same output flags as analyze apply, so a stored scorecard can be
re-rendered as JSON (--format json), streamed (--emit ndjson), or written
out as a Markdown report (--report).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRun(cmd, true); err != nil {
			return err
		}
		login, err := loginFromArgs(args)
		if err != nil {
			return err
		}
		if login == "" {
			return errors.New("a target login is required (pass an argument, or set --login or BROSKIES_LOGIN)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.Timeout)
		defer cancel()

		st, err := openStoreForReading()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		card, err := st.Load(ctx, login)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no scorecard stored for %s (run 'broskies analyze %s' first)", login, login)
		}
		if err != nil {
			return err
		}

		sinks, err := buildSinks()
		if err != nil {
			return err
		}
		if err := sinks.Write(card); err != nil {
			return err
		}
		if err := sinks.Close(); err != nil {
			return err
		}

		if cfg.Output.Format == "text" && !cfg.Output.NoConsole {
			if at, err := st.Freshness(ctx, login); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nlast analyzed %s\n", humanizeSince(time.Since(at)))
			}
		}
		return nil
	},
}

// openStoreForReading opens the configured store but refuses to create it:
// a read-only command on a missing store means no analysis ever ran.
func openStoreForReading() (*store.Store, error) {
	path, err := resolveStorePath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no local scorecard store at %s (run 'broskies analyze' first)", path)
	}
	return store.Open(path, store.WithHistoryLimit(cfg.Storage.HistoryLimit))
}

// humanizeSince phrases an elapsed duration the way people say it.
func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments ago"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	f := resultsCmd.Flags()
	f.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown scorecard report to this path")
	f.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit an additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
}
