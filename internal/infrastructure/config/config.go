package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"portfolioops/internal/domain/model"
	"portfolioops/internal/domain/service"
)

type Position struct {
	Ticker     string  `toml:"ticker"`
	Shares     float64 `toml:"shares"`
	CostBasis  float64 `toml:"cost_basis"`
	AssetClass string  `toml:"asset_class"`
}

type StaticQuote struct {
	Ticker    string  `toml:"ticker"`
	Price     float64 `toml:"price"`
	PrevClose float64 `toml:"prev_close"`
}

type Config struct {
	App struct {
		RefreshIntervalSec int  `toml:"refresh_interval_sec"`
		CycleTimeoutSec    int  `toml:"cycle_timeout_sec"`
		RunOnStart         bool `toml:"run_on_start"`
	} `toml:"app"`

	Portfolio struct {
		Positions []Position `toml:"positions"`
	} `toml:"portfolio"`

	Reconciliation struct {
		NAVTolerance        float64 `toml:"nav_tolerance"`
		StalenessMultiplier float64 `toml:"staleness_multiplier"`
	} `toml:"reconciliation"`

	Anomaly struct {
		ZScoreThreshold    float64 `toml:"zscore_threshold"`
		LookbackPeriods    int     `toml:"lookback_periods"`
		CriticalMultiplier float64 `toml:"critical_multiplier"`
		StdFloor           float64 `toml:"std_floor"`
	} `toml:"anomaly"`

	PriceFeed struct {
		Provider   string        `toml:"provider"`
		BaseURL    string        `toml:"base_url"`
		TimeoutSec int           `toml:"timeout_sec"`
		RatePerSec float64       `toml:"rate_per_sec"`
		Burst      int           `toml:"burst"`
		Workers    int           `toml:"workers"`
		UserAgent  string        `toml:"user_agent"`
		Static     []StaticQuote `toml:"static"`
	} `toml:"pricefeed"`

	Storage struct {
		Driver string `toml:"driver"`
		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`
		Postgres struct {
			DSN          string `toml:"dsn"`
			MaxOpenConns int    `toml:"max_open_conns"`
		} `toml:"postgres"`
	} `toml:"storage"`

	Redis struct {
		Enabled       bool   `toml:"enabled"`
		Addr          string `toml:"addr"`
		Password      string `toml:"password"`
		DB            int    `toml:"db"`
		Prefix        string `toml:"prefix"`
		AnomalyStream string `toml:"anomaly_stream"`
		CycleChannel  string `toml:"cycle_channel"`
		TTLSeconds    int    `toml:"ttl_seconds"`
	} `toml:"redis"`

	HTTP struct {
		Enabled     bool     `toml:"enabled"`
		Addr        string   `toml:"addr"`
		CORSOrigins []string `toml:"cors_origins"`
		CacheSize   int      `toml:"cache_size"`
	} `toml:"http"`

	Log struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used when no config file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	_ = validate(&cfg)
	return &cfg
}

// DefaultPositions is the stock 11-holding multi-asset portfolio.
func DefaultPositions() []Position {
	return []Position{
		// US equities
		{Ticker: "AAPL", Shares: 50, CostBasis: 165.00, AssetClass: "equity"},
		{Ticker: "MSFT", Shares: 30, CostBasis: 375.00, AssetClass: "equity"},
		{Ticker: "JPM", Shares: 40, CostBasis: 185.00, AssetClass: "equity"},
		{Ticker: "GS", Shares: 15, CostBasis: 420.00, AssetClass: "equity"},
		// fixed income ETF proxies
		{Ticker: "AGG", Shares: 100, CostBasis: 95.00, AssetClass: "fixed_income"},
		{Ticker: "TLT", Shares: 60, CostBasis: 88.00, AssetClass: "fixed_income"},
		// commodity ETF proxies
		{Ticker: "GLD", Shares: 25, CostBasis: 175.00, AssetClass: "commodity"},
		{Ticker: "USO", Shares: 80, CostBasis: 72.00, AssetClass: "commodity"},
		// international
		{Ticker: "EEM", Shares: 120, CostBasis: 38.00, AssetClass: "international"},
		{Ticker: "EFA", Shares: 90, CostBasis: 72.00, AssetClass: "international"},
		// cash equivalent
		{Ticker: "SHV", Shares: 200, CostBasis: 110.00, AssetClass: "cash_equiv"},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.RefreshIntervalSec <= 0 {
		cfg.App.RefreshIntervalSec = 60
	}
	if cfg.App.CycleTimeoutSec <= 0 {
		cfg.App.CycleTimeoutSec = 45
	}
	if len(cfg.Portfolio.Positions) == 0 {
		cfg.Portfolio.Positions = DefaultPositions()
	}

	if cfg.Reconciliation.NAVTolerance <= 0 {
		cfg.Reconciliation.NAVTolerance = 0.01
	}
	if cfg.Reconciliation.StalenessMultiplier <= 0 {
		cfg.Reconciliation.StalenessMultiplier = 3
	}

	if cfg.Anomaly.ZScoreThreshold <= 0 {
		cfg.Anomaly.ZScoreThreshold = 2.0
	}
	if cfg.Anomaly.LookbackPeriods <= 0 {
		cfg.Anomaly.LookbackPeriods = 20
	}
	if cfg.Anomaly.CriticalMultiplier <= 0 {
		cfg.Anomaly.CriticalMultiplier = 1.5
	}
	if cfg.Anomaly.StdFloor <= 0 {
		cfg.Anomaly.StdFloor = 1e-6
	}

	if strings.TrimSpace(cfg.PriceFeed.Provider) == "" {
		cfg.PriceFeed.Provider = "yahoo"
	}
	if strings.TrimSpace(cfg.PriceFeed.BaseURL) == "" {
		cfg.PriceFeed.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.PriceFeed.TimeoutSec <= 0 {
		cfg.PriceFeed.TimeoutSec = 10
	}
	if cfg.PriceFeed.RatePerSec <= 0 {
		cfg.PriceFeed.RatePerSec = 4
	}
	if cfg.PriceFeed.Burst <= 0 {
		cfg.PriceFeed.Burst = 2
	}
	if cfg.PriceFeed.Workers <= 0 {
		cfg.PriceFeed.Workers = 4
	}
	if strings.TrimSpace(cfg.PriceFeed.UserAgent) == "" {
		cfg.PriceFeed.UserAgent = "Mozilla/5.0 (compatible; portfolio-ops/1.0)"
	}

	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "portfolio_ops.db"
	}
	if cfg.Storage.Postgres.MaxOpenConns <= 0 {
		cfg.Storage.Postgres.MaxOpenConns = 10
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "portfolio"
	}

	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8000"
	}
	if len(cfg.HTTP.CORSOrigins) == 0 {
		cfg.HTTP.CORSOrigins = []string{"*"}
	}
	if cfg.HTTP.CacheSize <= 0 {
		cfg.HTTP.CacheSize = 64
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	if len(cfg.Portfolio.Positions) == 0 {
		return errors.New("portfolio.positions is empty")
	}
	seen := map[string]struct{}{}
	for i := range cfg.Portfolio.Positions {
		p := &cfg.Portfolio.Positions[i]
		p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
		if p.Ticker == "" {
			return fmt.Errorf("portfolio.positions[%d]: ticker is empty", i)
		}
		if _, ok := seen[p.Ticker]; ok {
			return fmt.Errorf("portfolio.positions[%d]: duplicate ticker %s", i, p.Ticker)
		}
		seen[p.Ticker] = struct{}{}
		if p.Shares <= 0 {
			return fmt.Errorf("portfolio.positions[%d] %s: shares must be > 0", i, p.Ticker)
		}
		if p.CostBasis <= 0 {
			return fmt.Errorf("portfolio.positions[%d] %s: cost_basis must be > 0", i, p.Ticker)
		}
		class, err := model.ParseAssetClass(p.AssetClass)
		if err != nil {
			return fmt.Errorf("portfolio.positions[%d] %s: %w", i, p.Ticker, err)
		}
		p.AssetClass = string(class)
	}

	if cfg.Reconciliation.NAVTolerance >= 1 {
		return errors.New("reconciliation.nav_tolerance must be < 1")
	}
	if cfg.Anomaly.LookbackPeriods < 2 {
		return errors.New("anomaly.lookback_periods must be >= 2")
	}
	if cfg.Anomaly.CriticalMultiplier < 1 {
		return errors.New("anomaly.critical_multiplier must be >= 1")
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q: want sqlite or postgres", cfg.Storage.Driver)
	}

	if cfg.PriceFeed.Provider == "static" && len(cfg.PriceFeed.Static) == 0 {
		return errors.New("pricefeed.static is empty but provider is static")
	}
	return nil
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.App.RefreshIntervalSec) * time.Second
}

func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.App.CycleTimeoutSec) * time.Second
}

// Holdings builds the immutable portfolio. Call after Load.
func (c *Config) Holdings() model.Portfolio {
	out := make([]model.Position, 0, len(c.Portfolio.Positions))
	for _, p := range c.Portfolio.Positions {
		out = append(out, model.Position{
			Ticker:     p.Ticker,
			Shares:     p.Shares,
			CostBasis:  p.CostBasis,
			AssetClass: model.AssetClass(p.AssetClass),
		})
	}
	return model.NewPortfolio(out)
}

func (c *Config) ReconConfig() service.ReconConfig {
	return service.ReconConfig{
		NAVTolerance:        c.Reconciliation.NAVTolerance,
		RefreshInterval:     c.RefreshInterval(),
		StalenessMultiplier: c.Reconciliation.StalenessMultiplier,
	}
}

func (c *Config) AnomalyConfig() service.AnomalyConfig {
	return service.AnomalyConfig{
		ZThreshold:         c.Anomaly.ZScoreThreshold,
		LookbackPeriods:    c.Anomaly.LookbackPeriods,
		CriticalMultiplier: c.Anomaly.CriticalMultiplier,
		StdFloor:           c.Anomaly.StdFloor,
	}
}

// StaticQuotes converts [[pricefeed.static]] rows for the static provider.
func (c *Config) StaticQuotes() map[string]model.Quote {
	out := make(map[string]model.Quote, len(c.PriceFeed.Static))
	for _, s := range c.PriceFeed.Static {
		q := model.Quote{Price: s.Price}
		if s.PrevClose > 0 {
			pc := s.PrevClose
			q.PrevClose = &pc
		}
		out[strings.ToUpper(strings.TrimSpace(s.Ticker))] = q
	}
	return out
}
