package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		quiet   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass and write the result file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath, root.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var perResult io.Writer = out
			if quiet {
				perResult = nil
			}
			coord, err := a.newCoordinator(perResult)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			summary, err := coord.Run(ctx)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			if !quiet {
				r := summary.Report
				fmt.Fprintf(out, "Saved %d results to %s (inserted %d, updated %d, removed %d, failed %d) in %s\n",
					summary.Results, a.cfg.Store.Path,
					r.Inserted, r.Updated, r.Disqualified+r.Pruned+r.Truncated, r.FetchFailed,
					summary.Duration().Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print per-candidate results")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long without saving (0 disables)")
	return cmd
}
