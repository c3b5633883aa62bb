package main

import (
	"flag"
	"os"
	"time"

	"BetaBasket/internal/collector"
	"BetaBasket/internal/config"
	"BetaBasket/internal/model"
)

var configPath = flag.String("config", "", "Path to the YAML config file (default $CONFIG_PATH or configs/config.yaml)")

// loadConfig reads and validates the config file.
func loadConfig() (*config.Config, error) {
	path := *configPath
	if path == "" {
		path = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newFetcher builds the market data source. mock selects generated offline data.
func newFetcher(cfg *config.Config, sink collector.Sink, mock bool) collector.Fetcher {
	if mock {
		end := time.Now().Truncate(time.Hour)
		return collector.NewMockFetcher(map[string][]model.Kline{
			"BTCUSDT": collector.GenerateMockBars(60000, 24*cfg.Market.LookbackDays, end, 0.0004),
			"ETHUSDT": collector.GenerateMockBars(3000, 24*cfg.Market.LookbackDays, end, 0.0007),
			"SOLUSDT": collector.GenerateMockBars(150, 24*cfg.Market.LookbackDays, end, -0.0003),
		})
	}
	return collector.NewBinanceClient(cfg.Market.BaseURL,
		collector.WithTimeout(cfg.Market.Timeout),
		collector.WithProxy(cfg.Proxy),
		collector.WithSink(sink),
		collector.WithPriceTTL(cfg.Market.PriceTTL),
		collector.WithQuoteAsset(cfg.Market.QuoteAsset),
	)
}
