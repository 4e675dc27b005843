// Package config provides configuration management for the agent trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine"`
	Advisors    AdvisorConfig     `mapstructure:"advisors"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Events      EventConfig       `mapstructure:"events"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	API         APIConfig         `mapstructure:"api"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds session engine configuration.
type EngineConfig struct {
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
	DefaultModel    string        `mapstructure:"default_model"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	// CommissionRate is the flat commission fraction charged per trade.
	CommissionRate float64 `mapstructure:"commission_rate"`
}

// AdvisorConfig holds advisory fan-out configuration.
type AdvisorConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// LedgerConfig holds ledger persistence configuration.
type LedgerConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// EventConfig holds event notifier configuration.
type EventConfig struct {
	BufferSize           int `mapstructure:"buffer_size"`
	SubscriberBufferSize int `mapstructure:"subscriber_buffer_size"`
}

// SchedulerConfig holds periodic execution configuration.
type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RunSpec    string `mapstructure:"run_spec"`    // cron spec for agent runs
	RollupSpec string `mapstructure:"rollup_spec"` // cron spec for performance rollup
	Task       string `mapstructure:"task"`        // instruction for scheduled runs
}

// APIConfig holds the HTTP API configuration.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/agent-trader"
	}
	return filepath.Join(home, ".config", "agent-trader")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DecisionTimeout: 90 * time.Second,
			DefaultModel:    "gpt-4o-mini",
			HistoryLimit:    50,
		},
		Advisors: AdvisorConfig{
			Timeout:          30 * time.Second,
			BreakerThreshold: 3,
			BreakerCooldown:  2 * time.Minute,
		},
		Ledger: LedgerConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "ledger.db"),
		},
		Events: EventConfig{
			BufferSize:           1000,
			SubscriberBufferSize: 100,
		},
		Scheduler: SchedulerConfig{
			Enabled:    false,
			RunSpec:    "@every 30m",
			RollupSpec: "5 0 * * *",
			Task:       "Review the portfolio and trade if warranted.",
		},
		API: APIConfig{
			Enabled: false,
			Addr:    ":8787",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env in the config dir or cwd may carry credentials; missing files
	// are fine.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("AGENT_TRADER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: defaults + env only.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Credentials.OpenAI.APIKey = firstNonEmpty(
		os.Getenv("AGENT_TRADER_OPENAI_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
	)
	cfg.Credentials.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Engine.DecisionTimeout <= 0 {
		return fmt.Errorf("engine.decision_timeout must be positive")
	}
	if c.Advisors.Timeout <= 0 {
		return fmt.Errorf("advisors.timeout must be positive")
	}
	if c.Events.BufferSize <= 0 || c.Events.SubscriberBufferSize <= 0 {
		return fmt.Errorf("events buffer sizes must be positive")
	}
	if c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
