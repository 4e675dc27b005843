package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agent-trader/internal/api"
	"agent-trader/internal/scheduler"
)

// addServeCommand registers the long-running server command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and scheduler",
		Long: `Runs the HTTP API, the websocket event stream and, when enabled,
the cron scheduler for periodic agent runs and performance rollups.
Stops cleanly on SIGINT or SIGTERM, waiting for in-flight sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("engine not available, check ledger configuration")
			}
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.API.Addr
			}

			app.Notifier.Start(cmd.Context())
			defer app.Notifier.Stop()

			var sched *scheduler.Scheduler
			if app.Config.Scheduler.Enabled {
				sched = scheduler.New(app.Engine, app.Store, scheduler.Config{
					RunSpec:    app.Config.Scheduler.RunSpec,
					RollupSpec: app.Config.Scheduler.RollupSpec,
					Task:       app.Config.Scheduler.Task,
				}, app.Logger)
				if err := sched.Start(); err != nil {
					return err
				}
				app.Logger.Info().
					Str("run_spec", app.Config.Scheduler.RunSpec).
					Str("rollup_spec", app.Config.Scheduler.RollupSpec).
					Msg("Scheduler started")
			}

			server := api.NewServer(addr, app.Engine, app.Store, app.Notifier, app.Logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if sched != nil {
					sched.Stop()
				}
				return err
			case sig := <-sigCh:
				app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
			}

			if sched != nil {
				sched.Stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn().Err(err).Msg("API server shutdown error")
			}

			// Let in-flight sessions reach a terminal state before exit.
			app.Engine.Wait()
			return nil
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (default from config)")

	rootCmd.AddCommand(serveCmd)
}
