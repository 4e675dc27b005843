package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// addVersionCommand registers the version command.
func addVersionCommand(rootCmd *cobra.Command) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agent-trader %s (%s/%s, %s)\n",
				Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
	rootCmd.AddCommand(versionCmd)
}
