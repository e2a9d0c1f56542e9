// Package config handles application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Symbols    []string        `yaml:"symbols"`
	Guard      GuardConfig     `yaml:"guard"`
	Placement  PlacementConfig `yaml:"placement"`
	Retry      RetryConfig     `yaml:"retry"`
	Algorithm  AlgorithmConfig `yaml:"algorithm"`
	Audit      AuditConfig     `yaml:"audit"`
	Discord    DiscordConfig   `yaml:"discord"`
	APIKey     string          `yaml:"-"` // Loaded from env
	APISecret  string          `yaml:"-"` // Loaded from env
	LogLevel   string          `yaml:"-"` // Loaded from env or defaults
	DBHost     string          `yaml:"-"`
	DBPort     string          `yaml:"-"`
	DBUser     string          `yaml:"-"`
	DBPassword string          `yaml:"-"`
	DBName     string          `yaml:"-"`
}

// GuardConfig holds the thresholds for the position safety sweep.
type GuardConfig struct {
	Enabled              FlexBool `yaml:"enabled"`
	MinDistancePct       float64  `yaml:"min_distance_pct"`       // minimum stop distance from market, in percent
	ForceCloseHours      float64  `yaml:"force_close_hours"`      // unprotected age that triggers a market close
	RetryIntervalMinutes int      `yaml:"retry_interval_minutes"` // spacing between stop placement retries
	MaxRetryAttempts     int      `yaml:"max_retry_attempts"`
	DefaultStopPct       float64  `yaml:"default_stop_pct"` // percent below executed price for retry stops
	ScanIntervalSeconds  int      `yaml:"scan_interval_seconds"`
	Workers              int      `yaml:"workers"`
}

// PlacementConfig holds timing knobs for protective order placement.
type PlacementConfig struct {
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds"`
	ReconcileDelaySeconds int `yaml:"reconcile_delay_seconds"`
	DedupWindowMinutes    int `yaml:"dedup_window_minutes"`
}

// RetryConfig holds the fast cadence used right after trade entry.
type RetryConfig struct {
	MaxAttempts          int `yaml:"max_attempts"`
	FastAttempts         int `yaml:"fast_attempts"`
	FastIntervalSeconds  int `yaml:"fast_interval_seconds"`
	LaterIntervalSeconds int `yaml:"later_interval_seconds"`
}

// AlgorithmConfig selects and parameterizes the stop price calculation.
type AlgorithmConfig struct {
	Kind       string  `yaml:"kind"`
	Percentage float64 `yaml:"percentage"`
	Timeframe  string  `yaml:"timeframe"`

	EMAPeriod int `yaml:"ema_period"`

	ATRPeriod           int     `yaml:"atr_period"`
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	AdaptiveATRLookback int     `yaml:"adaptive_atr_lookback"`

	VolatilityPeriod     int     `yaml:"volatility_period"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`

	SupportLookback   int `yaml:"support_lookback"`
	FibonacciLookback int `yaml:"fibonacci_lookback"`

	SupertrendPeriod     int     `yaml:"supertrend_period"`
	SupertrendMultiplier float64 `yaml:"supertrend_multiplier"`

	SARAcceleration float64 `yaml:"sar_acceleration"`
	SARMaximum      float64 `yaml:"sar_maximum"`

	BBPeriod int     `yaml:"bb_period"`
	BBStdDev float64 `yaml:"bb_std_dev"`

	RiskRewardRatio float64 `yaml:"risk_reward_ratio"`

	TimeDecayHours  float64 `yaml:"time_decay_hours"`
	TimeDecayFactor float64 `yaml:"time_decay_factor"`

	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
}

// DiscordConfig holds settings for the Discord alert notifier. Alerting is
// disabled when the bot token is empty.
type DiscordConfig struct {
	BotToken              string `yaml:"-"` // Loaded from env
	UserID                string `yaml:"user_id"`
	BufferIntervalMinutes int    `yaml:"buffer_interval_minutes"`
}

// AuditConfig holds settings for the batched activity event writer.
type AuditConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		// Default values
		LogLevel: "info",
		Guard: GuardConfig{
			Enabled:              true,
			MinDistancePct:       0.5,
			ForceCloseHours:      4,
			RetryIntervalMinutes: 15,
			MaxRetryAttempts:     20,
			DefaultStopPct:       2.0,
			ScanIntervalSeconds:  60,
			Workers:              5,
		},
		Placement: PlacementConfig{
			AttemptTimeoutSeconds: 10,
			ReconcileDelaySeconds: 3,
			DedupWindowMinutes:    5,
		},
		Retry: RetryConfig{
			MaxAttempts:          5,
			FastAttempts:         3,
			FastIntervalSeconds:  100,
			LaterIntervalSeconds: 150,
		},
		Algorithm: AlgorithmConfig{
			Kind:                 "fixed_percentage",
			Percentage:           5.0,
			Timeframe:            "4h",
			EMAPeriod:            7,
			ATRPeriod:            14,
			ATRMultiplier:        2.0,
			AdaptiveATRLookback:  50,
			VolatilityPeriod:     20,
			VolatilityMultiplier: 2.0,
			SupportLookback:      20,
			FibonacciLookback:    100,
			SupertrendPeriod:     10,
			SupertrendMultiplier: 3.0,
			SARAcceleration:      0.02,
			SARMaximum:           0.2,
			BBPeriod:             20,
			BBStdDev:             2.0,
			RiskRewardRatio:      1.5,
			TimeDecayHours:       24,
			TimeDecayFactor:      0.1,
			RSIPeriod:            14,
			RSIOversold:          30,
			RSIOverbought:        70,
		},
		Audit: AuditConfig{
			BatchSize:            50,
			WriteIntervalSeconds: 1,
		},
		Discord: DiscordConfig{
			BufferIntervalMinutes: 5,
		},
	}

	// Read YAML file
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, cfg)
	if err != nil {
		return nil, err
	}

	// Load sensitive data and overrides from environment variables
	if apiKey := os.Getenv("EXCHANGE_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if apiSecret := os.Getenv("EXCHANGE_API_SECRET"); apiSecret != "" {
		cfg.APISecret = apiSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DBHost = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		cfg.DBPort = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.DBUser = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.DBPassword = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.DBName = dbName
	}
	if botToken := os.Getenv("DISCORD_BOT_TOKEN"); botToken != "" {
		cfg.Discord.BotToken = botToken
	}
	if discordUser := os.Getenv("DISCORD_USER_ID"); discordUser != "" {
		cfg.Discord.UserID = discordUser
	}

	return cfg, nil
}

// DSN assembles a PostgreSQL connection string from the environment-provided
// database settings.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
