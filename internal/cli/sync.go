package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/executor"
	"github.com/raseen2305/broskies-1-sub002/internal/flags"
	gh "github.com/raseen2305/broskies-1-sub002/internal/github"
	"github.com/raseen2305/broskies-1-sub002/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the merged scorecard to the backend leaderboard",
	Long: `Push the merged scorecard to the backend leaderboard.

Manual syncs go through the same debounce and retry path as the automatic
post-analysis sync: the push happens after the debounce window, failures
back off exponentially, and the command reports the terminal outcome. The
backend treats the push as idempotent, so repeating it is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRun(cmd, false); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.Timeout)
		defer cancel()

		token, _, err := gh.ResolveToken(ctx, cfg.Backend.Token)
		if err != nil {
			return fmt.Errorf("resolve auth token: %w", err)
		}
		client, err := api.NewClient(cfg.Backend.BaseURL, token, api.WithVerbose(cfg.Runtime.Verbose, nil))
		if err != nil {
			return err
		}

		coord, err := syncer.New(client, executor.New(), nil, syncer.Config{
			DebounceWindow: cfg.Sync.DebounceWindow,
			MaxRetries:     cfg.Sync.MaxRetries,
		})
		if err != nil {
			return err
		}
		coord.Start(ctx)
		defer coord.Close()
		coord.TriggerSync()

		select {
		case res := <-coord.Results():
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync: score pushed at %s (attempt %d)\n",
				res.SyncedAt.Format(time.RFC3339), res.Attempts)
			return nil
		case <-ctx.Done():
			return fmt.Errorf("sync did not finish: %w", ctx.Err())
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	f := syncCmd.Flags()
	f.DurationVar(&cfg.Sync.DebounceWindow, flags.FlagSyncDebounce, cfg.Sync.DebounceWindow, "Debounce window before the push happens")
	f.IntVar(&cfg.Sync.MaxRetries, flags.FlagSyncRetries, cfg.Sync.MaxRetries, "Retry budget before the push is reported as failed")
}
