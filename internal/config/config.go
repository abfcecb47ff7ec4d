// Package config loads and validates the YAML configuration that drives a
// backtest run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"breakout/internal/domain"
)

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a backtest run.
type Config struct {
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	SymbolFiles  []string `yaml:"symbol_files"`
	SymbolSuffix string   `yaml:"symbol_suffix"`

	Strategy   StrategyConfig `yaml:"strategy"`
	Cash       float64        `yaml:"cash"`
	Commission float64        `yaml:"commission"`
	Slippage   float64        `yaml:"slippage"`
	Sizer      SizerConfig    `yaml:"sizer"`

	Data    DataConfig   `yaml:"data"`
	Alpaca  Alpaca       `yaml:"alpaca"`
	Logging Logging      `yaml:"logging"`
	Output  OutputConfig `yaml:"output"`
}

// StrategyConfig selects the strategy and its parameters.
type StrategyConfig struct {
	Name   string         `yaml:"name"`
	Params StrategyParams `yaml:"params"`
}

// StrategyParams holds the indicator windows for the breakout strategy.
type StrategyParams struct {
	SMAWindow  int `yaml:"sma_window"`
	HighWindow int `yaml:"high_window"`
}

// SizerConfig selects the position-sizing policy.
type SizerConfig struct {
	Type     string  `yaml:"type"`     // "percent" or "fixed"
	Percents float64 `yaml:"percents"` // percent of available cash per entry
	Shares   int64   `yaml:"shares"`   // fixed share count per entry
}

// DataConfig controls price acquisition and the on-disk cache.
type DataConfig struct {
	Source            string  `yaml:"source"` // "yahoo" or "alpaca"
	CacheEnabled      *bool   `yaml:"cache_enabled"`
	CacheDir          string  `yaml:"cache_dir"`
	ExpiryDays        int     `yaml:"expiry_days"`
	RefreshWindowDays int     `yaml:"refresh_window_days"`
	DownloadTimeout   int     `yaml:"download_timeout"` // seconds per fetch
	RetryAttempts     int     `yaml:"retry_attempts"`
	MaxWorkers        int     `yaml:"max_workers"`
	MinTradingDays    int     `yaml:"min_trading_days"`
	MaxMissingRatio   float64 `yaml:"max_missing_ratio"`
	RateLimitPerMin   int     `yaml:"rate_limit_per_min"`
	SSLVerify         *bool   `yaml:"ssl_verify"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig holds destinations for the trade ledger and equity curve.
type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
	DBPath  string `yaml:"db_path"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment overrides and defaults, and validates the result. Validation
// failures wrap domain.ErrConfig and are fatal to the run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfig, path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrConfig, path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	// Canonical Alpaca env var names, as read by the SDK, take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "breakout20"
	}
	if cfg.Strategy.Params.SMAWindow == 0 {
		cfg.Strategy.Params.SMAWindow = 20
	}
	if cfg.Strategy.Params.HighWindow == 0 {
		cfg.Strategy.Params.HighWindow = 20
	}
	if cfg.Sizer.Type == "" {
		cfg.Sizer.Type = "percent"
	}
	if cfg.Sizer.Type == "percent" && cfg.Sizer.Percents == 0 {
		cfg.Sizer.Percents = 10
	}

	d := &cfg.Data
	if d.Source == "" {
		d.Source = "yahoo"
	}
	if d.CacheEnabled == nil {
		t := true
		d.CacheEnabled = &t
	}
	if d.CacheDir == "" {
		d.CacheDir = "data/cache"
	}
	if d.ExpiryDays == 0 {
		d.ExpiryDays = 3
	}
	if d.RefreshWindowDays == 0 {
		d.RefreshWindowDays = 30
	}
	if d.DownloadTimeout == 0 {
		d.DownloadTimeout = 30
	}
	if d.RetryAttempts == 0 {
		d.RetryAttempts = 3
	}
	if d.MaxWorkers == 0 {
		d.MaxWorkers = 4
	}
	if d.MinTradingDays == 0 {
		d.MinTradingDays = 60
	}
	if d.MaxMissingRatio == 0 {
		d.MaxMissingRatio = 0.1
	}
	if d.SSLVerify == nil {
		t := true
		d.SSLVerify = &t
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Output.CSVPath == "" {
		cfg.Output.CSVPath = "results/csv/backtest_results.csv"
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks required fields, date parseability and ordering, and
// numeric ranges. All failures wrap domain.ErrConfig.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrConfig, fmt.Sprintf(format, args...))
	}

	if c.StartDate == "" || c.EndDate == "" {
		return fail("start_date and end_date are required")
	}
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return fail("unparseable start_date %q", c.StartDate)
	}
	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return fail("unparseable end_date %q", c.EndDate)
	}
	if !start.Before(end) {
		return fail("start_date %s must be before end_date %s", c.StartDate, c.EndDate)
	}

	if len(c.SymbolFiles) == 0 {
		return fail("at least one symbol file is required")
	}
	if c.Cash <= 0 {
		return fail("cash must be positive, got %v", c.Cash)
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return fail("commission rate must be in [0,1), got %v", c.Commission)
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return fail("slippage rate must be in [0,1), got %v", c.Slippage)
	}

	switch c.Sizer.Type {
	case "percent":
		if c.Sizer.Percents <= 0 || c.Sizer.Percents > 100 {
			return fail("sizer percents must be in (0,100], got %v", c.Sizer.Percents)
		}
	case "fixed":
		if c.Sizer.Shares <= 0 {
			return fail("sizer shares must be positive, got %d", c.Sizer.Shares)
		}
	default:
		return fail("unknown sizer type %q", c.Sizer.Type)
	}

	if c.Strategy.Params.SMAWindow < 1 || c.Strategy.Params.HighWindow < 1 {
		return fail("strategy windows must be >= 1")
	}

	switch c.Data.Source {
	case "yahoo", "alpaca":
	default:
		return fail("unknown data source %q", c.Data.Source)
	}
	if c.Data.Source == "alpaca" && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fail("alpaca source requires api_key and api_secret")
	}
	if c.Data.MaxMissingRatio < 0 || c.Data.MaxMissingRatio >= 1 {
		return fail("max_missing_ratio must be in [0,1), got %v", c.Data.MaxMissingRatio)
	}

	return nil
}

// Start returns the parsed start date. Validate must have succeeded.
func (c *Config) Start() time.Time {
	t, _ := time.Parse(dateLayout, c.StartDate)
	return t
}

// End returns the parsed end date. Validate must have succeeded.
func (c *Config) End() time.Time {
	t, _ := time.Parse(dateLayout, c.EndDate)
	return t
}

// CacheEnabled reports whether the price cache is enabled (default true).
func (c *Config) CacheEnabled() bool {
	return c.Data.CacheEnabled == nil || *c.Data.CacheEnabled
}

// SSLVerify reports whether TLS certificates are verified on downloads
// (default true).
func (c *Config) SSLVerify() bool {
	return c.Data.SSLVerify == nil || *c.Data.SSLVerify
}
