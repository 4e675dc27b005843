package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

// addSessionCommands registers the session lifecycle commands.
func addSessionCommands(rootCmd *cobra.Command, app *App) {
	runCmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Start an execution session for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("engine not available, check ledger configuration")
			}
			task, _ := cmd.Flags().GetString("task")
			modeStr, _ := cmd.Flags().GetString("mode")
			wait, _ := cmd.Flags().GetBool("wait")
			if task == "" {
				task = app.Config.Scheduler.Task
			}

			app.Notifier.Start(cmd.Context())
			session, err := app.Engine.Start(cmd.Context(), args[0], models.Mode(modeStr), task)
			if err != nil {
				if errors.Is(err, errors.ErrAlreadyRunning) {
					return fmt.Errorf("agent %s already has a session in flight", args[0])
				}
				return err
			}

			if !wait {
				if jsonOutput(cmd) {
					return printJSON(session)
				}
				fmt.Printf("Session %s started for agent %s\n", session.ID, session.AgentID)
				return nil
			}

			app.Engine.Wait()
			final, err := app.Store.GetSession(cmd.Context(), session.ID)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(final)
			}
			printSession(final)
			return nil
		},
	}
	runCmd.Flags().String("task", "", "instruction for this session")
	runCmd.Flags().String("mode", "", "mode override for this run (full-trading, rebalance-only)")
	runCmd.Flags().Bool("wait", true, "wait for the session to finish")

	statusCmd := &cobra.Command{
		Use:   "status <agent-id>",
		Short: "Show the current or latest session and portfolio state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("engine not available, check ledger configuration")
			}
			session, snap, err := app.Engine.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(map[string]interface{}{
					"session":           session,
					"financialSnapshot": snap,
				})
			}
			if session == nil {
				fmt.Println("No sessions recorded")
			} else {
				printSession(session)
			}
			if snap != nil {
				fmt.Println()
				printSnapshot(snap)
			}
			return nil
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <agent-id>",
		Short: "List past execution sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("engine not available, check ledger configuration")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			statusStr, _ := cmd.Flags().GetString("status")

			sessions, err := app.Engine.History(cmd.Context(), args[0], limit, models.SessionStatus(statusStr))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found")
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "SESSION\tSTATUS\tTRADES\tSTARTED\tENDED")
			for i := range sessions {
				s := &sessions[i]
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Status, s.TradesApplied, formatTime(s.StartedAt), formatTime(s.EndedAt))
			}
			return w.Flush()
		},
	}
	historyCmd.Flags().Int("limit", 20, "maximum sessions to show")
	historyCmd.Flags().String("status", "", "filter by status (pending, running, completed, failed, cancelled)")

	cancelCmd := &cobra.Command{
		Use:   "cancel <agent-id>",
		Short: "Request cancellation of the agent's running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine == nil {
				return fmt.Errorf("engine not available, check ledger configuration")
			}
			if err := app.Engine.Cancel(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, errors.ErrSessionNotRunning) {
					fmt.Println("No session running")
					return nil
				}
				return err
			}
			fmt.Println("Cancellation requested")
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, statusCmd, historyCmd, cancelCmd)
}
