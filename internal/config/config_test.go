package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AuthConfig
		wantErr bool
	}{
		{
			name:    "api key with base url",
			config:  AuthConfig{Type: "apikey", Token: "sk-x", BaseURL: "https://api.example.com"},
			wantErr: false,
		},
		{
			name:    "oauth token",
			config:  AuthConfig{Type: "oauth", Token: "oauth-token"},
			wantErr: false,
		},
		{
			name:    "litellm without base url",
			config:  AuthConfig{Type: "litellm", Token: "bearer"},
			wantErr: false,
		},
		{
			name:    "custom gateway",
			config:  AuthConfig{Type: "custom", Token: "bearer", BaseURL: "http://localhost:4000"},
			wantErr: false,
		},
		{
			name:    "unknown type",
			config:  AuthConfig{Type: "password", Token: "x"},
			wantErr: true,
		},
		{
			name:    "missing token",
			config:  AuthConfig{Type: "apikey"},
			wantErr: true,
		},
		{
			name:    "oauth with base url",
			config:  AuthConfig{Type: "oauth", Token: "t", BaseURL: "https://proxy"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("AuthConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TriggerConfig
		wantErr bool
	}{
		{
			name:    "defaults",
			config:  TriggerConfig{Interval: "30m", DailyMinAPICalls: 10, DailyMinTokens: 10000, WeeklyMinActiveDays: 3},
			wantErr: false,
		},
		{
			name:    "cron overrides interval parsing",
			config:  TriggerConfig{Cron: "0 0 9 * * *", Interval: "garbage"},
			wantErr: false,
		},
		{
			name:    "bad interval",
			config:  TriggerConfig{Interval: "soon"},
			wantErr: true,
		},
		{
			name:    "negative api calls",
			config:  TriggerConfig{DailyMinAPICalls: -1},
			wantErr: true,
		},
		{
			name:    "negative tokens",
			config:  TriggerConfig{DailyMinTokens: -5},
			wantErr: true,
		},
		{
			name:    "more active days than a week has",
			config:  TriggerConfig{WeeklyMinActiveDays: 8},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("TriggerConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerConfig_ApplyDefaults(t *testing.T) {
	c := TriggerConfig{}
	c.ApplyDefaults()

	if c.DailyMinAPICalls != 10 {
		t.Errorf("Expected DailyMinAPICalls to be 10, got %d", c.DailyMinAPICalls)
	}
	if c.DailyMinTokens != 10000 {
		t.Errorf("Expected DailyMinTokens to be 10000, got %d", c.DailyMinTokens)
	}
	if c.WeeklyMinActiveDays != 3 {
		t.Errorf("Expected WeeklyMinActiveDays to be 3, got %d", c.WeeklyMinActiveDays)
	}
	if c.Interval != "30m" {
		t.Errorf("Expected Interval to be 30m, got %s", c.Interval)
	}

	withCron := TriggerConfig{Cron: "0 0 * * * *"}
	withCron.ApplyDefaults()
	if withCron.Interval != "" {
		t.Errorf("Interval should stay empty when cron is set, got %s", withCron.Interval)
	}
}

func TestAgentConfig_ApplyDefaults(t *testing.T) {
	c := AgentConfig{MaxTurns: -3}
	c.ApplyDefaults()

	if c.Command != "claude" {
		t.Errorf("Expected Command claude, got %s", c.Command)
	}
	if c.MaxTurns != 10 {
		t.Errorf("Expected MaxTurns 10, got %d", c.MaxTurns)
	}
	if c.PermissionMode != "bypassPermissions" {
		t.Errorf("Expected PermissionMode bypassPermissions, got %s", c.PermissionMode)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
agent:
  max_turns: 6
auth:
  type: litellm
  token: bearer-1
  base_url: http://localhost:4000
user:
  language: zh
trigger:
  daily_min_api_calls: 3
storage:
  db_path: ` + filepath.Join(tmpDir, "db", "insight.db") + `
  export_path: ` + filepath.Join(tmpDir, "exports") + `
  log_path: ` + filepath.Join(tmpDir, "logs", "insight.log") + `
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.MaxTurns != 6 {
		t.Errorf("Expected MaxTurns 6, got %d", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("Expected default command claude, got %s", cfg.Agent.Command)
	}
	if cfg.Auth.Type != "litellm" || cfg.Auth.Token != "bearer-1" {
		t.Errorf("Unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.User.Language != "zh" {
		t.Errorf("Expected language zh, got %s", cfg.User.Language)
	}
	if cfg.Trigger.DailyMinAPICalls != 3 {
		t.Errorf("Expected DailyMinAPICalls 3, got %d", cfg.Trigger.DailyMinAPICalls)
	}
	if cfg.Trigger.WeeklyMinActiveDays != 3 {
		t.Errorf("Expected default WeeklyMinActiveDays 3, got %d", cfg.Trigger.WeeklyMinActiveDays)
	}
	if cfg.Storage.ExportPath != filepath.Join(tmpDir, "exports") {
		t.Errorf("Unexpected export path %s", cfg.Storage.ExportPath)
	}
}
