package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var recoverConfigPath string
var recoverStaleAfter string

func NewRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Fail stuck generations and free the generation lease",
		Long:  "Marks pending or generating reports with no progress for the stale window as failed, then breaks the generation lease if no live report holds it. Use after killing a hung agent.",
		RunE:  runRecover,
	}
	cmd.Flags().StringVarP(&recoverConfigPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&recoverStaleAfter, "stale-after", "", "Override trigger.stale_generating_after (e.g. 30m, 0s for all)")
	return cmd
}

func runRecover(cmd *cobra.Command, args []string) error {
	cfg, st, executor, err := openExecutor(recoverConfigPath, true)
	if err != nil {
		return err
	}
	defer st.Close()

	window := cfg.Trigger.StaleGeneratingAfter
	if recoverStaleAfter != "" {
		window = recoverStaleAfter
	}
	stale, err := time.ParseDuration(window)
	if err != nil {
		return fmt.Errorf("invalid stale window '%s': %w", window, err)
	}

	n, err := executor.Recover(stale)
	if err != nil {
		return fmt.Errorf("failed to recover: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Recovered %d stale report(s)\n", n)
	return nil
}
