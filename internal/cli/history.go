package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
	"github.com/raseen2305/broskies-1-sub002/internal/store"
)

var historyShowLimit int

var historyCmd = &cobra.Command{
	Use:   "history [login]",
	Short: "List prior scorecards recorded for an account",
	Long: `List prior scorecards recorded for an account, newest first.

Each completed analysis pushes the previous scorecard onto a bounded history
list (see --history-limit on analyze). The current scorecard is shown first,
followed by the recorded predecessors with the score change between
consecutive entries.`,
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

		current, err := st.Load(ctx, login)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		snapshots, err := st.History(ctx, login)
		if err != nil {
			return err
		}
		if current == nil && len(snapshots) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no history recorded for %s\n", login)
			return nil
		}

		var savedAt time.Time
		if current != nil {
			savedAt, _ = st.Freshness(ctx, login)
		}

		rows := buildHistoryRows(current, savedAt, snapshots)
		if historyShowLimit > 0 && len(rows) > historyShowLimit {
			rows = rows[:historyShowLimit]
		}
		printHistory(cmd.OutOrStdout(), login, rows)
		return nil
	},
}

type historyRow struct {
	label    string
	at       time.Time
	score    float64
	repos    int
	delta    float64
	hasDelta bool
}

// buildHistoryRows lines up the current scorecard and its predecessors,
// newest first, each row carrying the score change against the next-older
// one.
func buildHistoryRows(current *scorecard.Scorecard, savedAt time.Time, snapshots []store.Snapshot) []historyRow {
	var rows []historyRow
	if current != nil {
		at := savedAt
		if at.IsZero() {
			at = current.GeneratedAt
		}
		rows = append(rows, historyRow{
			label: "current",
			at:    at,
			score: current.Score,
			repos: len(current.Repos),
		})
	}
	for i, snap := range snapshots {
		if snap.Card == nil {
			continue
		}
		rows = append(rows, historyRow{
			label: fmt.Sprintf("-%d", i+1),
			at:    snap.SavedAt,
			score: snap.Card.Score,
			repos: len(snap.Card.Repos),
		})
	}
	for i := 0; i+1 < len(rows); i++ {
		rows[i].delta = rows[i].score - rows[i+1].score
		rows[i].hasDelta = true
	}
	return rows
}

func printHistory(w io.Writer, login string, rows []historyRow) {
	_, _ = color.New(color.Bold).Fprintf(w, "HISTORY: %s\n", login)
	fmt.Fprintln(w)
	for _, r := range rows {
		fmt.Fprintf(w, "  %-8s  %s  score %5.1f", r.label, r.at.UTC().Format("2006-01-02 15:04 UTC"), r.score)
		if r.hasDelta {
			fmt.Fprintf(w, "  (%+.1f)", r.delta)
		}
		fmt.Fprintf(w, "  %d repos\n", r.repos)
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyShowLimit, "limit", 0, "Show at most this many entries (0 = all recorded)")
}
