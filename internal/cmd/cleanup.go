package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cleanupConfigPath string

func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clean up old ledger records and export directories",
		RunE:  runCleanup,
	}
	cmd.Flags().StringVarP(&cleanupConfigPath, "config", "c", "", "Path to config file")
	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, st, executor, err := openExecutor(cleanupConfigPath, true)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, dirs, err := executor.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to cleanup old records: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Cleanup completed. Removed %d records and %d export directories older than %d days.\n",
		rows, dirs, cfg.Storage.RetentionDays)
	return nil
}
