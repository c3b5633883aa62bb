package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"BetaBasket/internal/calculator"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Market struct {
		BaseURL         string             `yaml:"base_url"`
		QuoteAsset      string             `yaml:"quote_asset"`
		Interval        string             `yaml:"interval"`
		LookbackDays    int                `yaml:"lookback_days"`
		PriceTTL        time.Duration      `yaml:"price_ttl"`
		CatalogInterval time.Duration      `yaml:"catalog_interval"`
		Concurrency     int                `yaml:"concurrency"`
		Timeout         time.Duration      `yaml:"timeout"`
		Betas           map[string]float64 `yaml:"betas"`
	} `yaml:"market"`
	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		AdminChatID int64  `yaml:"admin_chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		CatalogCron   string `yaml:"catalog_cron"`
		RecomputeCron string `yaml:"recompute_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
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
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Market.BaseURL = v
	}
	if v := os.Getenv("KLINE_INTERVAL"); v != "" {
		cfg.Market.Interval = v
	}
	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Market.LookbackDays = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.AdminChatID = id
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	// Defaults
	if cfg.Market.BaseURL == "" {
		cfg.Market.BaseURL = "https://fapi.binance.com"
	}
	if cfg.Market.QuoteAsset == "" {
		cfg.Market.QuoteAsset = "USDT"
	}
	if cfg.Market.Interval == "" {
		cfg.Market.Interval = "1h"
	}
	if cfg.Market.LookbackDays == 0 {
		cfg.Market.LookbackDays = 30
	}
	if cfg.Market.PriceTTL == 0 {
		cfg.Market.PriceTTL = time.Hour
	}
	if cfg.Market.CatalogInterval == 0 {
		cfg.Market.CatalogInterval = 5 * time.Minute
	}
	if cfg.Market.Concurrency == 0 {
		cfg.Market.Concurrency = 8
	}
	if cfg.Market.Timeout == 0 {
		cfg.Market.Timeout = 30 * time.Second
	}
	if cfg.Schedule.CatalogCron == "" {
		cfg.Schedule.CatalogCron = "@every 5m"
	}
	if cfg.Schedule.RecomputeCron == "" {
		cfg.Schedule.RecomputeCron = "0 5 * * * *"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/betabasket.db"
	}

	return cfg, nil
}

// Lookback returns the trailing window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Market.LookbackDays) * 24 * time.Hour
}

// Validate checks that all values are usable. The Telegram token is optional:
// without it the bot runs headless.
func (c *Config) Validate() error {
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if !calculator.ValidInterval(c.Market.Interval) {
		return fmt.Errorf("market.interval %q is not a supported bar interval", c.Market.Interval)
	}
	if c.Market.LookbackDays <= 0 {
		return fmt.Errorf("market.lookback_days must be positive")
	}
	if c.Market.PriceTTL < 0 || c.Market.CatalogInterval < 0 {
		return fmt.Errorf("market ttl values must not be negative")
	}
	if c.Market.Concurrency < 0 {
		return fmt.Errorf("market.concurrency must not be negative")
	}
	for sym, beta := range c.Market.Betas {
		if beta <= 0 {
			return fmt.Errorf("market.betas.%s must be positive", sym)
		}
	}
	if c.Telegram.AdminChatID != 0 && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.admin_chat_id requires telegram.bot_token")
	}
	return nil
}
