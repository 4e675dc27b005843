package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agent-trader/pkg/utils"
)

// addLedgerCommands registers the portfolio query commands.
func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	holdingsCmd := &cobra.Command{
		Use:   "holdings <agent-id>",
		Short: "Show an agent's current holdings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			holdings, err := app.Store.GetHoldings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(holdings)
			}
			if len(holdings) == 0 {
				fmt.Println("No holdings")
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "TICKER\tQTY\tAVG COST\tTOTAL COST")
			for i := range holdings {
				h := &holdings[i]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					h.Ticker, h.Quantity, h.AverageCost.StringFixed(4), utils.FormatMoney(h.TotalCost))
			}
			return w.Flush()
		},
	}

	transactionsCmd := &cobra.Command{
		Use:   "transactions <agent-id>",
		Short: "Show an agent's transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			txs, err := app.Store.GetTransactions(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(txs)
			}
			if len(txs) == 0 {
				fmt.Println("No transactions")
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "EXECUTED\tACTION\tTICKER\tQTY\tPRICE\tTOTAL\tCOMMISSION\tSTATUS")
			for i := range txs {
				t := &txs[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					formatTime(t.ExecutedAt), t.Action, t.Ticker, t.Quantity,
					utils.FormatMoney(t.Price), utils.FormatMoney(t.Total),
					utils.FormatMoney(t.Commission), t.Status)
			}
			return w.Flush()
		},
	}
	transactionsCmd.Flags().Int("limit", 50, "maximum transactions to show")
	transactionsCmd.Flags().Int("offset", 0, "transactions to skip")

	performanceCmd := &cobra.Command{
		Use:   "performance <agent-id>",
		Short: "Show an agent's daily performance snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("ledger not available")
			}
			if recompute, _ := cmd.Flags().GetBool("recompute"); recompute {
				if _, err := app.Store.RecomputePerformance(cmd.Context(), args[0], time.Now().UTC()); err != nil {
					return err
				}
			}
			from, err := parseDateFlag(cmd, "from")
			if err != nil {
				return err
			}
			to, err := parseDateFlag(cmd, "to")
			if err != nil {
				return err
			}
			snapshots, err := app.Store.GetPerformance(cmd.Context(), args[0], from, to)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(snapshots)
			}
			if len(snapshots) == 0 {
				fmt.Println("No performance snapshots")
				return nil
			}
			w := newTable()
			fmt.Fprintln(w, "DATE\tTOTAL\tCASH\tREALIZED\tUNREALIZED\tRETURN\tWIN RATE\tSHARPE")
			for i := range snapshots {
				s := &snapshots[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
					formatDate(s.Date), utils.FormatMoney(s.TotalValue), utils.FormatMoney(s.CashBalance),
					utils.FormatPnL(s.RealizedPnL), utils.FormatPnL(s.UnrealizedPnL),
					utils.FormatPercent(s.TotalReturn), s.WinRate*100, formatRatio(s.Sharpe))
			}
			return w.Flush()
		},
	}
	performanceCmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	performanceCmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	performanceCmd.Flags().Bool("recompute", false, "recompute today's snapshot first")

	rootCmd.AddCommand(holdingsCmd, transactionsCmd, performanceCmd)
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q, want YYYY-MM-DD", name, value)
	}
	return t, nil
}
