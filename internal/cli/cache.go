package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/executor"
	gh "github.com/raseen2305/broskies-1-sub002/internal/github"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Backend cache maintenance",
	Long: `Backend cache maintenance.

The backend caches expensive per-account computations server-side. These
commands manage that cache; the client's own in-process response cache
lives and dies with each command run and needs no maintenance here.`,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <key>",
	Short: "Drop the backend's cached value for a key",
	Long: `Drop the backend's cached value for a key.

Keys are backend-defined; the common one is an account login, which forces
the next analysis of that account to recompute everything.

Examples:
  broskies cache invalidate octocat
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRun(cmd, false); err != nil {
			return err
		}
		key := args[0]

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

		_, err = executor.New().Do(ctx, func(ctx context.Context) (any, error) {
			return nil, client.InvalidateCache(ctx, key)
		}, executor.Options{
			Retries:    cfg.Backend.Retries,
			RetryDelay: cfg.Backend.RetryDelay,
			Timeout:    cfg.Backend.Timeout,
		})
		if err != nil {
			return fmt.Errorf("invalidate %q: %w", key, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "cache: invalidated %q\n", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}
