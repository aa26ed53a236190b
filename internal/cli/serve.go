package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stockrecs/internal/jobs"
	"stockrecs/internal/scheduler"
	"stockrecs/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the results over HTTP and run the nightly schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath, root.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			coord, err := a.newCoordinator(nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a, coord.Run, runNow)
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "start a run immediately on startup")
	return cmd
}

// serve runs the HTTP server and the scheduler until ctx ends.
func serve(ctx context.Context, a *app, run jobs.RunFunc, runNow bool) error {
	manager := jobs.New(run, a.cfg.JobHistory, a.log)

	sched := scheduler.New(a.log)
	if a.cfg.Schedule != "" {
		if err := sched.AddJob(a.cfg.Schedule, scheduler.ReconcileJob{Jobs: manager, Log: a.log}); err != nil {
			return err
		}
	} else {
		a.log.Info().Msg("No schedule configured, runs are manual only")
	}

	srv := server.New(server.Config{
		Addr:           a.cfg.Server.Addr,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		Version:        Version,
		Results:        a.store,
		Runs:           manager,
		NextRun:        sched.Next,
		Log:            a.log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sched.Start()
	if runNow {
		if _, err := manager.Submit("startup"); err != nil {
			a.log.Warn().Err(err).Msg("Startup run not submitted")
		}
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		sched.Stop()
		errs := []error{
			srv.Shutdown(shutdownCtx),
			manager.Shutdown(shutdownCtx),
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
