package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"insight-report/internal/logger"
)

type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Auth    AuthConfig    `mapstructure:"auth"`
	User    UserConfig    `mapstructure:"user"`
	Trigger TriggerConfig `mapstructure:"trigger"`
	Storage StorageConfig `mapstructure:"storage"`
}

// AgentConfig controls how the narrative agent process is launched.
type AgentConfig struct {
	Command        string   `mapstructure:"command"`         // binary name or path, default "claude"
	Model          string   `mapstructure:"model"`           // optional --model override
	MaxTurns       int      `mapstructure:"max_turns"`       // cap on agent turns per report
	PermissionMode string   `mapstructure:"permission_mode"` // unattended mode, no approval loop
	ExtraArgs      []string `mapstructure:"extra_args"`
}

// AuthConfig is the credential source for the agent. Type selects which
// environment variables get synthesized.
type AuthConfig struct {
	Type    string `mapstructure:"type"` // oauth, litellm, apikey, custom
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type UserConfig struct {
	Language      string `mapstructure:"language"` // "system", "en", "zh"
	DisplayName   string `mapstructure:"display_name"`
	AssistantName string `mapstructure:"assistant_name"`
}

type TriggerConfig struct {
	Interval             string `mapstructure:"interval"`
	Cron                 string `mapstructure:"cron"`
	DailyMinAPICalls     int    `mapstructure:"daily_min_api_calls"`
	DailyMinTokens       int64  `mapstructure:"daily_min_tokens"`
	WeeklyMinActiveDays  int    `mapstructure:"weekly_min_active_days"`
	RunOnStart           bool   `mapstructure:"run_on_start"`
	StaleGeneratingAfter string `mapstructure:"stale_generating_after"` // used by recover
}

type StorageConfig struct {
	DBPath        string    `mapstructure:"db_path"`
	ExportPath    string    `mapstructure:"export_path"`
	LogPath       string    `mapstructure:"log_path"`
	RetentionDays int       `mapstructure:"retention_days"`
	Log           LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`
	RotationTime string `mapstructure:"rotation_time"`
	MaxSize      int    `mapstructure:"max_size"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age"`
	Compress     bool   `mapstructure:"compress"`
	Quiet        bool   `mapstructure:"quiet"` // no stdout logging
}

var validAuthTypes = map[string]bool{
	"oauth":   true,
	"litellm": true,
	"apikey":  true,
	"custom":  true,
}

// Validate checks the auth section.
func (c *AuthConfig) Validate() error {
	if !validAuthTypes[c.Type] {
		return fmt.Errorf("auth.type must be one of oauth, litellm, apikey, custom, got '%s'", c.Type)
	}
	if c.Token == "" {
		return fmt.Errorf("auth.token is required for auth type '%s'", c.Type)
	}
	if c.Type == "oauth" && c.BaseURL != "" {
		return fmt.Errorf("auth.base_url is not supported for oauth")
	}
	return nil
}

// Validate checks trigger thresholds and schedule.
func (c *TriggerConfig) Validate() error {
	if c.DailyMinAPICalls < 0 {
		return fmt.Errorf("daily_min_api_calls must be non-negative, got %d", c.DailyMinAPICalls)
	}
	if c.DailyMinTokens < 0 {
		return fmt.Errorf("daily_min_tokens must be non-negative, got %d", c.DailyMinTokens)
	}
	if c.WeeklyMinActiveDays < 0 || c.WeeklyMinActiveDays > 7 {
		return fmt.Errorf("weekly_min_active_days must be between 0 and 7, got %d", c.WeeklyMinActiveDays)
	}
	if c.Cron == "" && c.Interval != "" {
		if _, err := time.ParseDuration(c.Interval); err != nil {
			return fmt.Errorf("invalid trigger interval '%s': %w", c.Interval, err)
		}
	}
	return nil
}

// ApplyDefaults fills zero values with the built-in defaults.
func (c *TriggerConfig) ApplyDefaults() {
	if c.DailyMinAPICalls == 0 {
		c.DailyMinAPICalls = 10
	}
	if c.DailyMinTokens == 0 {
		c.DailyMinTokens = 10000
	}
	if c.WeeklyMinActiveDays == 0 {
		c.WeeklyMinActiveDays = 3
	}
	if c.Interval == "" && c.Cron == "" {
		c.Interval = "30m"
	}
	if c.StaleGeneratingAfter == "" {
		c.StaleGeneratingAfter = "2h"
	}
}

// ApplyDefaults fills zero values for the agent launcher.
func (c *AgentConfig) ApplyDefaults() {
	if c.Command == "" {
		c.Command = "claude"
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 10
	}
	if c.PermissionMode == "" {
		c.PermissionMode = "bypassPermissions"
	}
}

func (c *TriggerConfig) GetStaleDuration() (time.Duration, error) {
	return time.ParseDuration(c.StaleGeneratingAfter)
}

var globalConfig *Config

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			v.AddConfigPath(filepath.Join(execDir, "config"))
			v.AddConfigPath(execDir)
		}
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".insight-report"))
		}
	}

	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.Token == "" {
		cfg.Auth.Token = tokenFromEnv(cfg.Auth.Type)
	}

	cfg.Agent.ApplyDefaults()
	cfg.Trigger.ApplyDefaults()
	if err := cfg.Trigger.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger configuration: %w", err)
	}

	if err := normalizePaths(&cfg); err != nil {
		return nil, fmt.Errorf("failed to normalize paths: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.max_turns", 10)
	v.SetDefault("agent.permission_mode", "bypassPermissions")

	v.SetDefault("auth.type", "apikey")

	v.SetDefault("user.language", "system")
	v.SetDefault("user.assistant_name", "Insight")

	v.SetDefault("trigger.interval", "30m")
	v.SetDefault("trigger.daily_min_api_calls", 10)
	v.SetDefault("trigger.daily_min_tokens", 10000)
	v.SetDefault("trigger.weekly_min_active_days", 3)
	v.SetDefault("trigger.run_on_start", true)
	v.SetDefault("trigger.stale_generating_after", "2h")

	v.SetDefault("storage.db_path", "./data/db/insight-report.db")
	v.SetDefault("storage.export_path", "./data/exports")
	v.SetDefault("storage.retention_days", 90)
	v.SetDefault("storage.log.level", "info")
	v.SetDefault("storage.log.rotation_time", "24h")
	v.SetDefault("storage.log.max_size", 50)
	v.SetDefault("storage.log.max_backups", 3)
	v.SetDefault("storage.log.max_age", 14)
	v.SetDefault("storage.log.compress", true)
	v.SetDefault("storage.log.quiet", false)
}

// tokenFromEnv picks up the conventional variable for the auth type when
// no token is configured.
func tokenFromEnv(authType string) string {
	switch authType {
	case "oauth":
		return os.Getenv("CLAUDE_CODE_OAUTH_TOKEN")
	case "litellm", "custom":
		return os.Getenv("ANTHROPIC_AUTH_TOKEN")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

func Get() *Config {
	if globalConfig == nil {
		panic("config not loaded")
	}
	return globalConfig
}

func (c *TriggerConfig) GetIntervalDuration() (time.Duration, error) {
	if c.Interval == "" {
		return 0, fmt.Errorf("interval not configured")
	}
	return time.ParseDuration(c.Interval)
}

func (c *StorageConfig) EnsureDBPath() error {
	dir := filepath.Dir(c.DBPath)
	if dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func (c *StorageConfig) EnsureExportPath() error {
	if c.ExportPath != "" {
		return os.MkdirAll(c.ExportPath, 0755)
	}
	return nil
}

func normalizePaths(cfg *Config) error {
	baseDir, err := getBaseDirectory()
	if err != nil {
		baseDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get base directory: %w", err)
		}
	}

	if cfg.Storage.LogPath == "" {
		cfg.Storage.LogPath = filepath.Join(baseDir, "insight-report.log")
	} else if !filepath.IsAbs(cfg.Storage.LogPath) {
		cfg.Storage.LogPath = filepath.Join(baseDir, cfg.Storage.LogPath)
	}
	if filepath.Ext(cfg.Storage.LogPath) == "" {
		cfg.Storage.LogPath = filepath.Join(cfg.Storage.LogPath, "insight-report.log")
	}

	if cfg.Storage.DBPath != "" && !filepath.IsAbs(cfg.Storage.DBPath) {
		cfg.Storage.DBPath = filepath.Join(baseDir, cfg.Storage.DBPath)
	}
	if cfg.Storage.ExportPath != "" && !filepath.IsAbs(cfg.Storage.ExportPath) {
		cfg.Storage.ExportPath = filepath.Join(baseDir, cfg.Storage.ExportPath)
	}

	if cfg.Storage.Log.Level == "" {
		cfg.Storage.Log.Level = "info"
	}

	return initLogger(&cfg.Storage)
}

// getBaseDirectory resolves relative paths against the executable directory,
// walking up from a bin/ directory to the project root that holds config/.
func getBaseDirectory() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}

	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		realPath = execPath
	}

	execDir := filepath.Dir(realPath)
	if filepath.Base(execDir) == "bin" {
		currentDir := execDir
		for {
			parentDir := filepath.Dir(currentDir)
			if parentDir == currentDir {
				break
			}
			if info, err := os.Stat(filepath.Join(currentDir, "config")); err == nil && info.IsDir() {
				return currentDir, nil
			}
			currentDir = parentDir
		}
	}

	return execDir, nil
}

func initLogger(storage *StorageConfig) error {
	return logger.Init(logger.LogConfig{
		Level:        storage.Log.Level,
		FilePath:     storage.LogPath,
		RotationTime: storage.Log.RotationTime,
		MaxSize:      storage.Log.MaxSize,
		MaxBackups:   storage.Log.MaxBackups,
		MaxAge:       storage.Log.MaxAge,
		Compress:     storage.Log.Compress,
		Quiet:        storage.Log.Quiet,
	})
}
