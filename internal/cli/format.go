package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agent-trader/internal/models"
	"agent-trader/pkg/utils"
)

// jsonOutput reports whether the --json flag is set on the command.
func jsonOutput(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a tabwriter for aligned column output.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatRatio(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *r)
}

// printSession prints a one-session detail view.
func printSession(s *models.Session) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Agent:    %s\n", s.AgentID)
	fmt.Printf("Mode:     %s\n", s.Mode)
	fmt.Printf("Status:   %s\n", s.Status)
	if s.Task != "" {
		fmt.Printf("Task:     %s\n", s.Task)
	}
	if len(s.ToolsInvoked) > 0 {
		fmt.Printf("Advisors: %s\n", strings.Join(s.ToolsInvoked, ", "))
	}
	if s.TradesApplied > 0 {
		fmt.Printf("Trades:   %d\n", s.TradesApplied)
	}
	if s.Summary != "" {
		fmt.Printf("Summary:  %s\n", s.Summary)
	}
	if s.Error != "" {
		fmt.Printf("Error:    %s\n", s.Error)
	}
	fmt.Printf("Started:  %s\n", formatTime(s.StartedAt))
	if !s.EndedAt.IsZero() {
		fmt.Printf("Ended:    %s (%s)\n", formatTime(s.EndedAt), utils.FormatDuration(s.Duration()))
	}
}

// printSnapshot prints an agent's financial snapshot.
func printSnapshot(snap *models.FinancialSnapshot) {
	fmt.Printf("Cash:      %s\n", utils.FormatMoney(snap.CurrentFunds))
	fmt.Printf("Holdings:  %s\n", utils.FormatMoney(snap.HoldingsValue))
	fmt.Printf("Total:     %s\n", utils.FormatMoney(snap.TotalPortfolioValue))
}
