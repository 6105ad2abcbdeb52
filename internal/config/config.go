// Package config provides configuration management for the trading bot.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// Environment variables consulted when the file leaves a secret empty
const (
	EnvAPIKey    = "API_KEY"
	EnvAPISecret = "API_SECRET"
)

// DotEnvPath is the dotenv file loaded before the config is expanded
var DotEnvPath = ".env"

// Config represents the complete application configuration.
type Config struct {
	Environment    EnvironmentConfig    `yaml:"environment"`
	Exchange       ExchangeConfig       `yaml:"exchange"`
	Strategy       StrategyConfig       `yaml:"strategy"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
	Logging        LoggingConfig        `yaml:"logging"`
	Dashboard      DashboardConfig      `yaml:"dashboard"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ExchangeConfig defines exchange API settings.
type ExchangeConfig struct {
	Provider  string `yaml:"provider"` // coinswitch | mock
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"` // hex ed25519 seed
	BaseAsset string `yaml:"base_asset"`
	Timeout   string `yaml:"timeout"`
}

// StrategyConfig defines trading strategy parameters.
type StrategyConfig struct {
	Entry             EntryConfig `yaml:"entry"`
	Exit              ExitConfig  `yaml:"exit"`
	OrderQty          float64     `yaml:"order_qty"`
	Band              float64     `yaml:"band"`
	WingStrikeEpsilon float64     `yaml:"wing_strike_epsilon"`
}

// EntryConfig defines the entry trigger and leg selection.
type EntryConfig struct {
	Mode        string  `yaml:"mode"` // iv_spike | immediate
	TargetDelta float64 `yaml:"target_delta"`
	SpikeRatio  float64 `yaml:"spike_ratio"`
	Smoothing   float64 `yaml:"smoothing"`
}

// ExitConfig defines exit thresholds as fractions of the margin base.
type ExitConfig struct {
	ProfitTargetPct float64 `yaml:"profit_target_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
}

// ScheduleConfig defines the control loop cadence.
type ScheduleConfig struct {
	EntryPoll     string `yaml:"entry_poll"`
	EntryBackoff  string `yaml:"entry_backoff"`
	CheckInterval string `yaml:"check_interval"`
}

// LoggingConfig defines log and trade journal files.
type LoggingConfig struct {
	File       string `yaml:"file"`
	TradesCSV  string `yaml:"trades_csv"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DashboardConfig defines the read-only status server.
type DashboardConfig struct {
	AuthToken string `yaml:"auth_token"`
	Port      int    `yaml:"port"`
	Enabled   bool   `yaml:"enabled"`
}

// CircuitBreakerConfig defines the exchange circuit breaker.
type CircuitBreakerConfig struct {
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	FailureRatio float64 `yaml:"failure_ratio"`
	MaxRequests  uint32  `yaml:"max_requests"`
	MinRequests  uint32  `yaml:"min_requests"`
	Enabled      bool    `yaml:"enabled"`
}

// Entry modes
const (
	EntryModeIVSpike   = "iv_spike"
	EntryModeImmediate = "immediate"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Exchange: ExchangeConfig{
			Provider:  "coinswitch",
			BaseURL:   "https://dma.coinswitch.co",
			BaseAsset: "BTC",
			Timeout:   "10s",
		},
		Strategy: StrategyConfig{
			OrderQty: 0.01,
			Entry: EntryConfig{
				Mode:        EntryModeIVSpike,
				TargetDelta: 0.1,
				SpikeRatio:  1.3,
				Smoothing:   0.1,
			},
			Band:              0.1,
			Exit:              ExitConfig{ProfitTargetPct: 0.1, StopLossPct: 0.1},
			WingStrikeEpsilon: 1e-6,
		},
		Schedule: ScheduleConfig{
			EntryPoll:     "1s",
			EntryBackoff:  "5s",
			CheckInterval: "15m",
		},
		Logging: LoggingConfig{
			File:       "strategy.log",
			TradesCSV:  "trades.csv",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Dashboard: DashboardConfig{Port: 9847},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      true,
			MaxRequests:  3,
			Interval:     "60s",
			Timeout:      "30s",
			MinRequests:  5,
			FailureRatio: 0.6,
		},
	}
}

// Load reads and parses the configuration file from the specified path.
// Keys absent from the file keep their Default values.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.finish(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	config := Default()
	if err := config.finish(); err != nil {
		return nil, err
	}
	return &config, nil
}

func loadDotEnv() error {
	if DotEnvPath == "" {
		return nil
	}
	// Variables already set in the environment take precedence
	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", DotEnvPath, err)
	}
	return nil
}

func (c *Config) finish() error {
	c.normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// normalize fills secrets from the environment and lowercases enums
func (c *Config) normalize() {
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = os.Getenv(EnvAPISecret)
	}
	c.Environment.Mode = strings.ToLower(strings.TrimSpace(c.Environment.Mode))
	c.Exchange.Provider = strings.ToLower(strings.TrimSpace(c.Exchange.Provider))
	c.Strategy.Entry.Mode = strings.ToLower(strings.TrimSpace(c.Strategy.Entry.Mode))
	c.Exchange.BaseAsset = strings.ToUpper(strings.TrimSpace(c.Exchange.BaseAsset))
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if _, err := logrus.ParseLevel(c.Environment.LogLevel); err != nil {
		return fmt.Errorf("environment.log_level invalid: %w", err)
	}

	// Exchange validation
	switch c.Exchange.Provider {
	case "coinswitch":
		if c.Exchange.APIKey == "" {
			return fmt.Errorf("exchange.api_key is required (or set %s)", EnvAPIKey)
		}
		if c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange.api_secret is required (or set %s)", EnvAPISecret)
		}
	case "mock":
	default:
		return fmt.Errorf("exchange.provider must be 'coinswitch' or 'mock', got %q", c.Exchange.Provider)
	}
	if c.Exchange.BaseAsset == "" {
		return fmt.Errorf("exchange.base_asset is required")
	}
	if err := positiveDuration("exchange.timeout", c.Exchange.Timeout); err != nil {
		return err
	}

	// Strategy validation
	s := c.Strategy
	if s.OrderQty <= 0 {
		return fmt.Errorf("strategy.order_qty must be > 0")
	}
	if s.Entry.Mode != EntryModeIVSpike && s.Entry.Mode != EntryModeImmediate {
		return fmt.Errorf("strategy.entry.mode must be '%s' or '%s'", EntryModeIVSpike, EntryModeImmediate)
	}
	if s.Entry.TargetDelta <= 0 || s.Entry.TargetDelta >= 1 {
		return fmt.Errorf("strategy.entry.target_delta must be in (0,1)")
	}
	if s.Entry.SpikeRatio <= 1 {
		return fmt.Errorf("strategy.entry.spike_ratio must be > 1")
	}
	if s.Entry.Smoothing <= 0 || s.Entry.Smoothing > 1 {
		return fmt.Errorf("strategy.entry.smoothing must be in (0,1]")
	}
	if s.Band <= 0 {
		return fmt.Errorf("strategy.band must be > 0")
	}
	if s.Exit.ProfitTargetPct <= 0 {
		return fmt.Errorf("strategy.exit.profit_target_pct must be > 0")
	}
	if s.Exit.StopLossPct <= 0 {
		return fmt.Errorf("strategy.exit.stop_loss_pct must be > 0")
	}
	if s.WingStrikeEpsilon < 0 {
		return fmt.Errorf("strategy.wing_strike_epsilon must be >= 0")
	}

	// Schedule validation
	for name, v := range map[string]string{
		"schedule.entry_poll":     c.Schedule.EntryPoll,
		"schedule.entry_backoff":  c.Schedule.EntryBackoff,
		"schedule.check_interval": c.Schedule.CheckInterval,
	} {
		if err := positiveDuration(name, v); err != nil {
			return err
		}
	}

	if c.Logging.TradesCSV == "" {
		return fmt.Errorf("logging.trades_csv is required")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	if c.CircuitBreaker.Enabled {
		cb := c.CircuitBreaker
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("circuit_breaker.failure_ratio must be in (0,1]")
		}
		if err := positiveDuration("circuit_breaker.interval", cb.Interval); err != nil {
			return err
		}
		if err := positiveDuration("circuit_breaker.timeout", cb.Timeout); err != nil {
			return err
		}
	}

	return nil
}

func positiveDuration(name, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", name)
	}
	return nil
}

// mustDuration parses a duration already checked by Validate
func mustDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetEntryPoll returns the delay between entry polls.
func (c *Config) GetEntryPoll() time.Duration {
	return mustDuration(c.Schedule.EntryPoll, time.Second)
}

// GetEntryBackoff returns the delay after a poll without an ATM quote.
func (c *Config) GetEntryBackoff() time.Duration {
	return mustDuration(c.Schedule.EntryBackoff, 5*time.Second)
}

// GetCheckInterval returns the delay between position checks.
func (c *Config) GetCheckInterval() time.Duration {
	return mustDuration(c.Schedule.CheckInterval, 15*time.Minute)
}

// GetExchangeTimeout returns the HTTP timeout for exchange calls.
func (c *Config) GetExchangeTimeout() time.Duration {
	return mustDuration(c.Exchange.Timeout, 10*time.Second)
}

// GetCircuitBreakerInterval returns the breaker count reset interval.
func (c *Config) GetCircuitBreakerInterval() time.Duration {
	return mustDuration(c.CircuitBreaker.Interval, 60*time.Second)
}

// GetCircuitBreakerTimeout returns how long the breaker stays open.
func (c *Config) GetCircuitBreakerTimeout() time.Duration {
	return mustDuration(c.CircuitBreaker.Timeout, 30*time.Second)
}
