package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "insight-report",
		Short: "Insight report - periodic AI usage reports",
		Long:  "Aggregates AI coding tool usage into daily and weekly statistics and has an agent write a narrative report about them",
	}

	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewDaemonCmd())
	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewQueryCmd())
	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewRecoverCmd())
	rootCmd.AddCommand(NewCleanupCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}
