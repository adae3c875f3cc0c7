package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Marketplace describes one marketplace search endpoint.
type Marketplace struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Config holds all application configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Database   struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Scheduler struct {
		Tick        string `yaml:"tick"` // cron spec for the due scan
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"scheduler"`
	Executor struct {
		Parallelism    int `yaml:"parallelism"`
		SearchTimeoutS int `yaml:"search_timeout_seconds"`
	} `yaml:"executor"`
	Match struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"match"`
	Notifier struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notifier"`
	Marketplaces []Marketplace `yaml:"marketplaces"`
	Proxy        string        `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notifier.WebhookURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
		var threshold float64
		if _, err := fmt.Sscanf(v, "%f", &threshold); err == nil {
			cfg.Match.Threshold = threshold
		}
	}
	if v := os.Getenv("SCHEDULER_TICK"); v != "" {
		cfg.Scheduler.Tick = v
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Scheduler.Tick == "" {
		cfg.Scheduler.Tick = "@every 1m"
	}
	if cfg.Scheduler.MaxAttempts == 0 {
		cfg.Scheduler.MaxAttempts = 3
	}
	if cfg.Executor.Parallelism == 0 {
		cfg.Executor.Parallelism = 4
	}
	if cfg.Executor.SearchTimeoutS == 0 {
		cfg.Executor.SearchTimeoutS = 15
	}
	if cfg.Match.Threshold == 0 {
		cfg.Match.Threshold = 0.6
	}

	return cfg, nil
}

// Validate checks that all configured fields are coherent.
func (c *Config) Validate() error {
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("match.threshold must be in (0,1], got %v", c.Match.Threshold)
	}
	if c.Executor.Parallelism < 1 {
		return fmt.Errorf("executor.parallelism must be positive")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("scheduler.max_attempts must be positive")
	}
	seen := make(map[string]bool)
	for _, m := range c.Marketplaces {
		if m.ID == "" {
			return fmt.Errorf("marketplace id is required")
		}
		if m.BaseURL == "" {
			return fmt.Errorf("marketplace %s: base_url is required", m.ID)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate marketplace id %s", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}
