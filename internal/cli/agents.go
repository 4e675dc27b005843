package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
	"agent-trader/internal/modes"
	"agent-trader/pkg/utils"
)

// addAgentCommands registers agent management commands.
func addAgentCommands(rootCmd *cobra.Command, app *App) {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage trading agents",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			fundsStr, _ := cmd.Flags().GetString("funds")
			modeStr, _ := cmd.Flags().GetString("mode")
			model, _ := cmd.Flags().GetString("model")
			description, _ := cmd.Flags().GetString("description")
			maxPosition, _ := cmd.Flags().GetFloat64("max-position")

			funds, err := decimal.NewFromString(fundsStr)
			if err != nil || funds.IsNegative() {
				return fmt.Errorf("invalid funds %q", fundsStr)
			}
			mode := models.Mode(modeStr)
			if _, err := modes.Resolve(mode); err != nil {
				return err
			}

			now := time.Now().UTC()
			agent := &models.Agent{
				ID:              uuid.NewString(),
				Name:            args[0],
				Description:     description,
				Model:           model,
				InitialFunds:    funds,
				CurrentFunds:    funds,
				MaxPositionSize: maxPosition,
				Status:          models.AgentActive,
				Mode:            mode,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := app.Store.CreateAgent(cmd.Context(), agent); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(agent)
			}
			fmt.Printf("Agent %s created (%s, funds %s, mode %s)\n",
				agent.ID, agent.Name, utils.FormatMoney(agent.InitialFunds), agent.Mode)
			return nil
		},
	}
	addCmd.Flags().String("funds", "100000", "initial cash funds")
	addCmd.Flags().String("mode", string(models.ModeFullTrading), "execution mode (full-trading, rebalance-only)")
	addCmd.Flags().String("model", "", "AI model override for this agent")
	addCmd.Flags().String("description", "", "agent description")
	addCmd.Flags().Float64("max-position", 0.2, "maximum position size as a portfolio fraction")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			agents, err := app.Store.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(agents)
			}
			if len(agents) == 0 {
				fmt.Println("No agents found")
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tNAME\tMODE\tSTATUS\tCASH\tLAST ACTIVE")
			for i := range agents {
				a := &agents[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Name, a.Mode, a.Status,
					utils.FormatMoney(a.CurrentFunds), formatTime(a.LastActiveAt))
			}
			return w.Flush()
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <agent-id>",
		Short: "Update an agent's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			// Configuration is frozen while a session is in flight so a run
			// never observes a mid-flight mode or limit change.
			if app.Engine != nil && app.Engine.IsRunning(args[0]) {
				return errors.ErrAgentLocked
			}
			agent, err := app.Store.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("mode") {
				modeStr, _ := cmd.Flags().GetString("mode")
				mode := models.Mode(modeStr)
				if _, err := modes.Resolve(mode); err != nil {
					return err
				}
				agent.Mode = mode
			}
			if cmd.Flags().Changed("model") {
				agent.Model, _ = cmd.Flags().GetString("model")
			}
			if cmd.Flags().Changed("description") {
				agent.Description, _ = cmd.Flags().GetString("description")
			}
			if cmd.Flags().Changed("max-position") {
				agent.MaxPositionSize, _ = cmd.Flags().GetFloat64("max-position")
			}
			if cmd.Flags().Changed("status") {
				statusStr, _ := cmd.Flags().GetString("status")
				switch status := models.AgentStatus(statusStr); status {
				case models.AgentActive, models.AgentSuspended:
					agent.Status = status
				default:
					return fmt.Errorf("invalid status %q, want active or suspended", statusStr)
				}
			}
			agent.UpdatedAt = time.Now().UTC()

			if err := app.Store.UpdateAgent(cmd.Context(), agent); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(agent)
			}
			fmt.Printf("Agent %s updated\n", agent.ID)
			return nil
		},
	}
	updateCmd.Flags().String("mode", "", "execution mode (full-trading, rebalance-only)")
	updateCmd.Flags().String("model", "", "AI model override")
	updateCmd.Flags().String("description", "", "agent description")
	updateCmd.Flags().Float64("max-position", 0, "maximum position size as a portfolio fraction")
	updateCmd.Flags().String("status", "", "agent status (active, suspended)")

	agentCmd.AddCommand(addCmd, listCmd, updateCmd)
	rootCmd.AddCommand(agentCmd)
}
