// Package config provides configuration management for remedyd.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all remedyd configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Rules     RulesConfig     `yaml:"rules"`
	Execution ExecutionConfig `yaml:"execution"`
	Cooldown  CooldownConfig  `yaml:"cooldown"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RulesConfig holds remediation rule loading settings.
type RulesConfig struct {
	// Path is a YAML file or a directory of YAML files.
	Path string `yaml:"path"`
}

// ExecutionConfig holds action execution settings.
type ExecutionConfig struct {
	// RunnerBin is the external automation runner invoked per action.
	RunnerBin string `yaml:"runner_bin"`
	// WorkDir, when set, is the working directory for runner processes.
	WorkDir string `yaml:"work_dir"`
	// MaxConcurrent caps concurrently executing remediation attempts.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// CooldownConfig selects the cooldown tracker backend.
type CooldownConfig struct {
	Backend string      `yaml:"backend"` // memory, redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the cooldown tracker.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	// URL of the document store; empty disables export.
	URL       string        `yaml:"url"`
	Index     string        `yaml:"index"`
	TokenEnv  string        `yaml:"token_env"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueSize int           `yaml:"queue_size"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Rules: RulesConfig{
			Path: "rules",
		},
		Execution: ExecutionConfig{
			RunnerBin:     "ansible-playbook",
			MaxConcurrent: 16,
		},
		Cooldown: CooldownConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "remedyd:cooldown",
			},
		},
		Audit: AuditConfig{
			Index:     "remediations",
			Timeout:   5 * time.Second,
			QueueSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
