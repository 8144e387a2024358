package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the engine. Secrets may be overridden by
// environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		Addr         string `yaml:"addr"`
		Symbol       string `yaml:"symbol"`
		SenderCompID string `yaml:"sender_comp_id"`
		TargetCompID string `yaml:"target_comp_id"`
		Account      string `yaml:"account"`
		Password     string `yaml:"password"`
		HeartbeatSec int    `yaml:"heartbeat_sec"`
		ReconnectSec int    `yaml:"reconnect_sec"`
	} `yaml:"feed"`

	Engine struct {
		LosscutIntervalSec int  `yaml:"losscut_interval_sec"`
		SwapTickSec        int  `yaml:"swap_tick_sec"`
		AllowSynthetic     bool `yaml:"allow_synthetic"` // display-only fallback quotes
	} `yaml:"engine"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity and fills safe defaults.
func (c *Config) Validate() error {
	if c.Feed.Addr == "" {
		return fmt.Errorf("feed addr is required")
	}
	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed symbol is required")
	}
	if c.Feed.Account == "" {
		return fmt.Errorf("feed account is required")
	}
	if c.Feed.HeartbeatSec <= 0 {
		c.Feed.HeartbeatSec = 30
	}
	if c.Feed.ReconnectSec <= 0 {
		c.Feed.ReconnectSec = 5
	}
	if c.Engine.LosscutIntervalSec <= 0 {
		c.Engine.LosscutIntervalSec = 5
	}
	if c.Engine.SwapTickSec <= 0 {
		c.Engine.SwapTickSec = 60
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return nil
}

// overrideWithEnv replaces secrets from the environment when present.
func overrideWithEnv(cfg *Config) {
	if acct := os.Getenv("FX_FEED_ACCOUNT"); acct != "" {
		cfg.Feed.Account = acct
	}
	if pass := os.Getenv("FX_FEED_PASSWORD"); pass != "" {
		cfg.Feed.Password = pass
	}
	if addr := os.Getenv("FX_FEED_ADDR"); addr != "" {
		cfg.Feed.Addr = addr
	}
}
