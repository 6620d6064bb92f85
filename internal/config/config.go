package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voledgehq/voledge/internal/mispricing"
	"github.com/voledgehq/voledge/internal/models"
	"github.com/voledgehq/voledge/internal/scoring"
)

// Config represents the complete application configuration
type Config struct {
	IBKR     IBKRConfig     `mapstructure:"ibkr"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// IBKRConfig holds Client Portal gateway configuration
type IBKRConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ScannerConfig holds scan loop and screening configuration
type ScannerConfig struct {
	Symbols        []string      `mapstructure:"symbols"`
	ScanInterval   time.Duration `mapstructure:"scan_interval"`
	HistoryDays    int           `mapstructure:"history_days"`
	TopK           int           `mapstructure:"top_k"`
	MinDTE         int           `mapstructure:"min_dte"`
	MaxDTE         int           `mapstructure:"max_dte"`
	MinDelta       float64       `mapstructure:"min_delta"`
	MaxDelta       float64       `mapstructure:"max_delta"`
	MinPremium     float64       `mapstructure:"min_premium"`
	MaxSpreadRatio float64       `mapstructure:"max_spread_ratio"`
	IVHVThreshold  float64       `mapstructure:"iv_hv_threshold"`
}

// PricingConfig holds model and volatility-estimation configuration
type PricingConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	HVMethod     string  `mapstructure:"hv_method"`
	HVWindows    []int   `mapstructure:"hv_windows"`
}

// ScoringConfig holds composite-score configuration
type ScoringConfig struct {
	Weights          WeightsConfig `mapstructure:"weights"`
	RatioFloor       float64       `mapstructure:"ratio_floor"`
	RatioCeiling     float64       `mapstructure:"ratio_ceiling"`
	DeviationCeiling float64       `mapstructure:"deviation_ceiling"`
	TargetDelta      float64       `mapstructure:"target_delta"`
	ThetaCeiling     float64       `mapstructure:"theta_ceiling"`
	SweetSpotLow     int           `mapstructure:"sweet_spot_low"`
	SweetSpotHigh    int           `mapstructure:"sweet_spot_high"`
	ProfitTarget     float64       `mapstructure:"profit_target"`
	LossLimit        float64       `mapstructure:"loss_limit"`
	Strategy         string        `mapstructure:"strategy"`
	SpreadWidth      float64       `mapstructure:"spread_width"`
}

// WeightsConfig holds the six subscore weights
type WeightsConfig struct {
	IVHVRatio      float64 `mapstructure:"iv_hv_ratio"`
	PriceDeviation float64 `mapstructure:"price_deviation"`
	Delta          float64 `mapstructure:"delta"`
	Theta          float64 `mapstructure:"theta"`
	Liquidity      float64 `mapstructure:"liquidity"`
	DTE            float64 `mapstructure:"dte"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	MaxScanAge   int    `mapstructure:"max_scan_age_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("VOLEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// IBKR defaults
	v.SetDefault("ibkr.gateway_url", "https://localhost:5000/v1/api")
	v.SetDefault("ibkr.timeout", "30s")
	v.SetDefault("ibkr.max_retries", 3)
	v.SetDefault("ibkr.retry_delay", "2s")

	// Scanner defaults
	v.SetDefault("scanner.scan_interval", "15m")
	v.SetDefault("scanner.history_days", 365)
	v.SetDefault("scanner.top_k", 10)
	v.SetDefault("scanner.min_dte", 7)
	v.SetDefault("scanner.max_dte", 45)
	v.SetDefault("scanner.min_delta", 0.15)
	v.SetDefault("scanner.max_delta", 0.35)
	v.SetDefault("scanner.min_premium", 0.50)
	v.SetDefault("scanner.max_spread_ratio", 0.10)
	v.SetDefault("scanner.iv_hv_threshold", 1.2)

	// Pricing defaults
	v.SetDefault("pricing.risk_free_rate", 0.05)
	v.SetDefault("pricing.hv_method", "standard")
	v.SetDefault("pricing.hv_windows", []int{10, 21, 63, 126, 252})

	// Scoring defaults
	v.SetDefault("scoring.weights.iv_hv_ratio", 0.30)
	v.SetDefault("scoring.weights.price_deviation", 0.20)
	v.SetDefault("scoring.weights.delta", 0.15)
	v.SetDefault("scoring.weights.theta", 0.15)
	v.SetDefault("scoring.weights.liquidity", 0.10)
	v.SetDefault("scoring.weights.dte", 0.10)
	v.SetDefault("scoring.ratio_floor", 1.0)
	v.SetDefault("scoring.ratio_ceiling", 2.0)
	v.SetDefault("scoring.deviation_ceiling", 0.20)
	v.SetDefault("scoring.target_delta", 0.25)
	v.SetDefault("scoring.theta_ceiling", 0.02)
	v.SetDefault("scoring.sweet_spot_low", 14)
	v.SetDefault("scoring.sweet_spot_high", 35)
	v.SetDefault("scoring.profit_target", 0.50)
	v.SetDefault("scoring.loss_limit", 2.0)
	v.SetDefault("scoring.strategy", "cash_secured_put")

	// Storage defaults
	v.SetDefault("storage.database_path", "./data/voledge.db")
	v.SetDefault("storage.max_scan_age_days", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid. Detector and
// scorer settings are validated by building their configs, so a config that
// loads cleanly is one the pipeline can actually run with.
func (c *Config) Validate() error {
	// Validate IBKR config
	if c.IBKR.GatewayURL == "" {
		return fmt.Errorf("ibkr.gateway_url is required")
	}
	if c.IBKR.Timeout < 1*time.Second {
		return fmt.Errorf("ibkr.timeout must be at least 1 second")
	}
	if c.IBKR.MaxRetries < 0 {
		return fmt.Errorf("ibkr.max_retries must not be negative")
	}

	// Validate Scanner config
	if len(c.Scanner.Symbols) == 0 {
		return fmt.Errorf("scanner.symbols must contain at least one symbol")
	}
	if c.Scanner.ScanInterval < 1*time.Minute {
		return fmt.Errorf("scanner.scan_interval must be at least 1 minute")
	}
	if c.Scanner.HistoryDays < 30 {
		return fmt.Errorf("scanner.history_days must be at least 30")
	}
	if c.Scanner.TopK < 1 {
		return fmt.Errorf("scanner.top_k must be at least 1")
	}

	// Detector and scorer settings
	if _, err := mispricing.New(c.DetectorConfig()); err != nil {
		return err
	}
	if _, err := scoring.New(c.ScorerConfig()); err != nil {
		return err
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if c.Storage.MaxScanAge < 1 {
		return fmt.Errorf("storage.max_scan_age_days must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DetectorConfig assembles the mispricing detector configuration
func (c *Config) DetectorConfig() mispricing.Config {
	return mispricing.Config{
		Thresholds: mispricing.Thresholds{
			MinDTE:         c.Scanner.MinDTE,
			MaxDTE:         c.Scanner.MaxDTE,
			MinDelta:       c.Scanner.MinDelta,
			MaxDelta:       c.Scanner.MaxDelta,
			MinPremium:     c.Scanner.MinPremium,
			MaxSpreadRatio: c.Scanner.MaxSpreadRatio,
			IVHVThreshold:  c.Scanner.IVHVThreshold,
		},
		RiskFreeRate: c.Pricing.RiskFreeRate,
		HVWindows:    c.Pricing.HVWindows,
		HVMethod:     models.VolMethod(c.Pricing.HVMethod),
	}
}

// ScorerConfig assembles the scoring configuration
func (c *Config) ScorerConfig() scoring.Config {
	return scoring.Config{
		Weights: scoring.Weights{
			IVHVRatio:      c.Scoring.Weights.IVHVRatio,
			PriceDeviation: c.Scoring.Weights.PriceDeviation,
			Delta:          c.Scoring.Weights.Delta,
			Theta:          c.Scoring.Weights.Theta,
			Liquidity:      c.Scoring.Weights.Liquidity,
			DTE:            c.Scoring.Weights.DTE,
		},
		RatioFloor:       c.Scoring.RatioFloor,
		RatioCeiling:     c.Scoring.RatioCeiling,
		DeviationCeiling: c.Scoring.DeviationCeiling,
		TargetDelta:      c.Scoring.TargetDelta,
		MinDelta:         c.Scanner.MinDelta,
		MaxDelta:         c.Scanner.MaxDelta,
		ThetaCeiling:     c.Scoring.ThetaCeiling,
		MaxSpreadRatio:   c.Scanner.MaxSpreadRatio,
		MinDTE:           c.Scanner.MinDTE,
		MaxDTE:           c.Scanner.MaxDTE,
		SweetSpotLow:     c.Scoring.SweetSpotLow,
		SweetSpotHi:      c.Scoring.SweetSpotHigh,
		ProfitTarget:     c.Scoring.ProfitTarget,
		LossLimit:        c.Scoring.LossLimit,
		Strategy:         scoring.Strategy(c.Scoring.Strategy),
		SpreadWidth:      c.Scoring.SpreadWidth,
	}
}
