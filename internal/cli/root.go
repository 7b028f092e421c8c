package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Streaming action execution engine for model output",
	Long: `weft consumes a model output stream, recognizes embedded action
envelopes (file writes, shell commands, server starts) while the stream
is still arriving, and executes them against a project workspace under
strict ordering and partial-failure guarantees.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "Workspace root directory")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
