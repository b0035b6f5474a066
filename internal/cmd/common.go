package cmd

import (
	"fmt"

	"insight-report/internal/agent"
	"insight-report/internal/config"
	"insight-report/internal/storage"
	"insight-report/internal/task"
)

// openStorage loads the config and opens the database, creating the data
// directories as needed.
func openStorage(configPath string) (*config.Config, *storage.Storage, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Storage.EnsureDBPath(); err != nil {
		return nil, nil, fmt.Errorf("failed to create db path: %w", err)
	}
	if err := cfg.Storage.EnsureExportPath(); err != nil {
		return nil, nil, fmt.Errorf("failed to create export path: %w", err)
	}

	st, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return cfg, st, nil
}

// openExecutor is openStorage plus an executor. The caller closes storage.
// Commands that never start the agent pass offline so a missing credential
// does not block them.
func openExecutor(configPath string, offline bool) (*config.Config, *storage.Storage, *task.Executor, error) {
	cfg, st, err := openStorage(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if offline {
		return cfg, st, task.NewExecutorWithRunner(cfg, st, agent.NewClaudeRunner(cfg.Agent)), nil
	}

	executor, err := task.NewExecutor(cfg, st)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to create executor: %w", err)
	}
	return cfg, st, executor, nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
