package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"insight-report/internal/logger"
	"insight-report/internal/scheduler"
)

var configPath string

func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the report scheduler in the foreground",
		RunE:  runStart,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, st, executor, err := openExecutor(configPath, false)
	if err != nil {
		return err
	}
	defer st.Close()

	// a previous process may have died mid-generation
	stale, err := cfg.Trigger.GetStaleDuration()
	if err != nil {
		return fmt.Errorf("invalid stale_generating_after: %w", err)
	}
	if n, err := executor.Recover(stale); err != nil {
		logger.GetLogger().Warnf("Startup recovery failed: %v", err)
	} else if n > 0 {
		logger.GetLogger().Infof("Recovered %d stale report(s)", n)
	}

	sched, err := scheduler.NewScheduler(cfg.Trigger)
	if err != nil {
		return fmt.Errorf("failed to create trigger scheduler: %w", err)
	}
	if err := sched.Start(executor.RunTriggerCheck); err != nil {
		return fmt.Errorf("failed to start trigger scheduler: %w", err)
	}

	logger.GetLogger().Info("Insight report started. Press Ctrl+C to stop.")
	logger.GetLogger().Infof("Trigger interval: %s, cron: %s, run on start: %v",
		cfg.Trigger.Interval, cfg.Trigger.Cron, cfg.Trigger.RunOnStart)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.GetLogger().Info("Stopping...")
	if err := sched.Stop(); err != nil {
		return fmt.Errorf("failed to stop trigger scheduler: %w", err)
	}
	logger.GetLogger().Info("Waiting for in-flight report generation...")
	executor.Wait()
	logger.GetLogger().Info("Stopped.")

	return nil
}
