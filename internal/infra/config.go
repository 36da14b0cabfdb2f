package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the bot consumes. Secrets may be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode       string   `yaml:"mode"` // "paper" or "live"
		Strategies []string `yaml:"strategies"`
	} `yaml:"trading"`

	API struct {
		BaseURL        string `yaml:"base_url"`
		WSURL          string `yaml:"ws_url"`
		KeyID          string `yaml:"key_id"`
		PrivateKeyPath string `yaml:"private_key_path"`

		RateLimit struct {
			Burst     int     `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`

		Retry struct {
			MaxAttempts int `yaml:"max_attempts"`
			BaseDelayMS int `yaml:"base_delay_ms"`
			MaxDelayMS  int `yaml:"max_delay_ms"`
		} `yaml:"retry"`

		Reconnect struct {
			BaseDelayMS int `yaml:"base_delay_ms"`
			MaxDelayMS  int `yaml:"max_delay_ms"`
		} `yaml:"reconnect"`
	} `yaml:"api"`

	Scanner struct {
		IntervalSec int `yaml:"interval_sec"`
		MinVolume   int `yaml:"min_volume"`
		MaxSpread   int `yaml:"max_spread"`
		WatchSize   int `yaml:"watch_size"`
	} `yaml:"scanner"`

	Runner struct {
		StrategyTimeoutMS int `yaml:"strategy_timeout_ms"`
		MinTickMS         int `yaml:"min_tick_ms"`
	} `yaml:"runner"`

	Risk struct {
		MaxPositionPerMarket int    `yaml:"max_position_per_market"`
		MaxTotalExposure     int    `yaml:"max_total_exposure"`
		MaxDailyLoss         string `yaml:"max_daily_loss"` // dollars
	} `yaml:"risk"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, and validates the result.
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
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" || !strings.HasPrefix(c.API.BaseURL, "http") {
		return fmt.Errorf("invalid API base URL: %s", c.API.BaseURL)
	}
	if c.API.WSURL == "" || (!strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://")) {
		return fmt.Errorf("invalid WS URL: %s", c.API.WSURL)
	}
	if c.Scanner.IntervalSec <= 0 {
		return fmt.Errorf("scanner interval must be positive")
	}
	if c.API.RateLimit.Burst <= 0 || c.API.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("rate limit burst and per_second must be positive")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("max position per market must be positive")
	}
	mode := strings.ToLower(c.Trading.Mode)
	if mode != "paper" && mode != "live" {
		return fmt.Errorf("trading mode must be paper or live, got %q", c.Trading.Mode)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if len(cfg.Trading.Strategies) == 0 {
		cfg.Trading.Strategies = []string{"naive_value"}
	}
	if cfg.API.Retry.MaxAttempts == 0 {
		cfg.API.Retry.MaxAttempts = 3
	}
	if cfg.API.Retry.BaseDelayMS == 0 {
		cfg.API.Retry.BaseDelayMS = 1000
	}
	if cfg.API.Retry.MaxDelayMS == 0 {
		cfg.API.Retry.MaxDelayMS = 30_000
	}
	if cfg.API.Reconnect.BaseDelayMS == 0 {
		cfg.API.Reconnect.BaseDelayMS = 250
	}
	if cfg.API.Reconnect.MaxDelayMS == 0 {
		cfg.API.Reconnect.MaxDelayMS = 30_000
	}
	if cfg.Runner.StrategyTimeoutMS == 0 {
		cfg.Runner.StrategyTimeoutMS = 2000
	}
	if cfg.Runner.MinTickMS == 0 {
		cfg.Runner.MinTickMS = 5000
	}
	if cfg.Scanner.WatchSize == 0 {
		cfg.Scanner.WatchSize = 50
	}
	if cfg.Risk.MaxTotalExposure == 0 {
		cfg.Risk.MaxTotalExposure = 1000
	}
	if cfg.Risk.MaxDailyLoss == "" {
		cfg.Risk.MaxDailyLoss = "500"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "pm_bot.db"
	}
}

// overrideWithEnv lets environment variables take precedence over the
// config file for credentials.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("PMBOT_API_KEY_ID"); key != "" {
		cfg.API.KeyID = key
	}
	if path := os.Getenv("PMBOT_PRIVATE_KEY_PATH"); path != "" {
		cfg.API.PrivateKeyPath = path
	}
}
