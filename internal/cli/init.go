package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default weft.json and the engine directories",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("workspace")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	cfgPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	if err := config.GenerateDefault().Save(cfgPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := workspace.Initialize(root); err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized weft workspace in %s\n", root)
	return nil
}
