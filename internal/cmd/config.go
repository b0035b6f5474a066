package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"insight-report/internal/config"
	"insight-report/internal/prompt"
)

var configConfigPath string

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE:  runConfig,
	}
	cmd.Flags().StringVarP(&configConfigPath, "config", "c", "", "Path to config file")
	return cmd
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Configuration\n")
	fmt.Fprintf(os.Stdout, "=============\n\n")
	fmt.Fprintf(os.Stdout, "Agent:\n")
	fmt.Fprintf(os.Stdout, "  Command: %s\n", cfg.Agent.Command)
	fmt.Fprintf(os.Stdout, "  Model: %s\n", valueOr(cfg.Agent.Model, "(default)"))
	fmt.Fprintf(os.Stdout, "  Max Turns: %d\n", cfg.Agent.MaxTurns)
	fmt.Fprintf(os.Stdout, "  Permission Mode: %s\n", cfg.Agent.PermissionMode)
	fmt.Fprintf(os.Stdout, "\nAuth:\n")
	fmt.Fprintf(os.Stdout, "  Type: %s\n", cfg.Auth.Type)
	fmt.Fprintf(os.Stdout, "  Token: %s\n", maskAPIKey(cfg.Auth.Token))
	fmt.Fprintf(os.Stdout, "  Base URL: %s\n", valueOr(cfg.Auth.BaseURL, "(default)"))
	if err := cfg.Auth.Validate(); err != nil {
		fmt.Fprintf(os.Stdout, "  Warning: %v\n", err)
	}
	fmt.Fprintf(os.Stdout, "\nUser:\n")
	fmt.Fprintf(os.Stdout, "  Language: %s (resolved: %s)\n", cfg.User.Language, prompt.ResolveLanguage(cfg.User.Language))
	fmt.Fprintf(os.Stdout, "  Display Name: %s\n", valueOr(cfg.User.DisplayName, "(not set)"))
	fmt.Fprintf(os.Stdout, "  Assistant Name: %s\n", cfg.User.AssistantName)
	fmt.Fprintf(os.Stdout, "\nTrigger:\n")
	fmt.Fprintf(os.Stdout, "  Interval: %s\n", cfg.Trigger.Interval)
	fmt.Fprintf(os.Stdout, "  Cron: %s\n", cfg.Trigger.Cron)
	fmt.Fprintf(os.Stdout, "  Run On Start: %v\n", cfg.Trigger.RunOnStart)
	fmt.Fprintf(os.Stdout, "  Daily Minimum: %d api calls, %d tokens\n", cfg.Trigger.DailyMinAPICalls, cfg.Trigger.DailyMinTokens)
	fmt.Fprintf(os.Stdout, "  Weekly Minimum: %d active days\n", cfg.Trigger.WeeklyMinActiveDays)
	fmt.Fprintf(os.Stdout, "  Stale Generating After: %s\n", cfg.Trigger.StaleGeneratingAfter)
	fmt.Fprintf(os.Stdout, "\nStorage:\n")
	fmt.Fprintf(os.Stdout, "  DB Path: %s\n", cfg.Storage.DBPath)
	fmt.Fprintf(os.Stdout, "  Export Path: %s\n", cfg.Storage.ExportPath)
	fmt.Fprintf(os.Stdout, "  Retention Days: %d\n", cfg.Storage.RetentionDays)
	fmt.Fprintf(os.Stdout, "  Log Path: %s\n", cfg.Storage.LogPath)
	fmt.Fprintf(os.Stdout, "  Log Level: %s\n", cfg.Storage.Log.Level)

	return nil
}

func maskAPIKey(key string) string {
	if len(key) == 0 {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
