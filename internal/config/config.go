// Package config handles configuration loading for fairvalue.
// It supports YAML config files with .env and environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/seenimoa/fairvalue/internal/analysis/valuation"
	"github.com/seenimoa/fairvalue/internal/infra"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FAIRVALUE"

// Known provider names.
const (
	ProviderYFinance = "yfinance"
	ProviderFile     = "file"
	ProviderFMP      = "fmp"
)

// Config represents the complete application configuration.
type Config struct {
	Valuation ValuationConfig `mapstructure:"valuation" yaml:"valuation"`
	Provider  ProviderConfig  `mapstructure:"provider"  yaml:"provider"`
	Batch     BatchConfig     `mapstructure:"batch"     yaml:"batch"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// ValuationConfig holds the default model parameters.
type ValuationConfig struct {
	Period      int     `mapstructure:"period"       yaml:"period"`
	RiskFree    float64 `mapstructure:"risk_free"    yaml:"risk_free"`
	ERP         float64 `mapstructure:"erp"          yaml:"erp"`
	GrowthDecay float64 `mapstructure:"growth_decay" yaml:"growth_decay"`
	Terminal    float64 `mapstructure:"terminal"     yaml:"terminal"`
}

// ProviderConfig selects and tunes the statement providers.
type ProviderConfig struct {
	Name       string        `mapstructure:"name"        yaml:"name"`     // "yfinance", "file", "fmp"
	Fallback   []string      `mapstructure:"fallback"    yaml:"fallback"` // tried in order after Name
	DataDir    string        `mapstructure:"data_dir"    yaml:"data_dir"`
	Timeout    time.Duration `mapstructure:"timeout"     yaml:"timeout"     validate:"gt=0"` // per call
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	Backoff    time.Duration `mapstructure:"backoff"     yaml:"backoff"     validate:"gte=0"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	RateLimit  int           `mapstructure:"rate_limit"  yaml:"rate_limit"  validate:"gte=0"` // requests/second
	CacheTTL   time.Duration `mapstructure:"cache_ttl"   yaml:"cache_ttl"`
	FMPKey     string        `mapstructure:"fmp_key"     yaml:"fmp_key"`
}

// BatchConfig holds batch mode settings and the watchlist.
type BatchConfig struct {
	Concurrency int            `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1"`
	Tickers     []TickerConfig `mapstructure:"tickers"     yaml:"tickers"`
}

// TickerConfig is one watchlist entry. Nil fields fall back to the
// valuation defaults; Growth and Capex are rate overrides.
type TickerConfig struct {
	Symbol      string   `mapstructure:"symbol"       yaml:"symbol"`
	Period      *int     `mapstructure:"period"       yaml:"period,omitempty"`
	RiskFree    *float64 `mapstructure:"risk_free"    yaml:"risk_free,omitempty"`
	ERP         *float64 `mapstructure:"erp"          yaml:"erp,omitempty"`
	GrowthDecay *float64 `mapstructure:"growth_decay" yaml:"growth_decay,omitempty"`
	Terminal    *float64 `mapstructure:"terminal"     yaml:"terminal,omitempty"`
	Growth      *float64 `mapstructure:"growth"       yaml:"growth,omitempty"`
	Capex       *float64 `mapstructure:"capex"        yaml:"capex,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.fairvalue/config.yaml (home directory)
//  3. /etc/fairvalue/config.yaml (system)
//
// A .env file in the working directory is loaded first; variables already
// set in the environment win. Environment variables override config file
// values. Format: FAIRVALUE_<SECTION>_<KEY>, e.g., FAIRVALUE_PROVIDER_NAME
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".fairvalue"))
	v.AddConfigPath("/etc/fairvalue")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	cfg.normalize()
	return &cfg, nil
}

// loadDotEnv loads ./.env if present.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error loading .env: %w", err)
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Valuation defaults
	v.SetDefault("valuation.period", valuation.DefaultPeriod)
	v.SetDefault("valuation.risk_free", valuation.DefaultRiskFree)
	v.SetDefault("valuation.erp", valuation.DefaultERP)
	v.SetDefault("valuation.growth_decay", valuation.DefaultGrowthDecay)
	v.SetDefault("valuation.terminal", valuation.DefaultTerminal)

	// Provider defaults
	v.SetDefault("provider.name", ProviderYFinance)
	v.SetDefault("provider.fallback", []string{})
	v.SetDefault("provider.data_dir", "./data")
	v.SetDefault("provider.timeout", 20*time.Second)
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("provider.backoff", 500*time.Millisecond)
	v.SetDefault("provider.max_backoff", 8*time.Second)
	v.SetDefault("provider.rate_limit", 2)
	v.SetDefault("provider.cache_ttl", 6*time.Hour)
	v.SetDefault("provider.fmp_key", "")

	// Batch defaults
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.tickers", defaultWatchlist())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// defaultWatchlist is the stock watchlist with its tuned assumptions.
func defaultWatchlist() []map[string]any {
	return []map[string]any{
		{"symbol": "MSFT", "growth_decay": 0.01, "terminal": 0.04, "growth": 0.18},
		{"symbol": "INTU", "terminal": 0.03, "growth": 0.16},
		{"symbol": "SAP", "growth": 0.12},
		{"symbol": "NOW", "terminal": 0.03},
		{"symbol": "GOOGL", "terminal": 0.03},
		{"symbol": "AMZN", "terminal": 0.03, "growth": 0.17, "capex": 0.08},
		{"symbol": "NVDA", "terminal": 0.03},
		{"symbol": "MCD"},
	}
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
// The provider's own variable is honoured when the prefixed one is unset.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv(EnvPrefix + "_PROVIDER_FMP_KEY"); key != "" {
		cfg.Provider.FMPKey = key
	} else if cfg.Provider.FMPKey == "" {
		cfg.Provider.FMPKey = os.Getenv(FMPKeyEnv)
	}
}

func (c *Config) normalize() {
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	for i, name := range c.Provider.Fallback {
		c.Provider.Fallback[i] = strings.ToLower(strings.TrimSpace(name))
	}
	for i := range c.Batch.Tickers {
		c.Batch.Tickers[i].Symbol = utils.NormalizeTicker(c.Batch.Tickers[i].Symbol)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// Validate rejects configurations the runner cannot work with. Every
// problem found is reported. Field ranges come from the validate struct
// tags; the rest needs the whole config.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		errs = append(errs, fieldErrors(err)...)
	}

	if err := c.BaseParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("valuation: %w", err))
	}

	for _, name := range c.ProviderChain() {
		switch name {
		case ProviderYFinance, ProviderFMP:
		case ProviderFile:
			if c.Provider.DataDir == "" {
				errs = append(errs, fmt.Errorf("provider: file provider needs data_dir"))
			}
		default:
			errs = append(errs, fmt.Errorf("provider: unknown provider %q", name))
		}
	}

	seen := make(map[string]bool, len(c.Batch.Tickers))
	for i, t := range c.Batch.Tickers {
		if t.Symbol == "" {
			errs = append(errs, fmt.Errorf("batch: ticker %d has no symbol", i))
			continue
		}
		if seen[t.Symbol] {
			errs = append(errs, fmt.Errorf("batch: duplicate ticker %s", t.Symbol))
		}
		seen[t.Symbol] = true
		if err := c.Params(t).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("batch: %s: %w", t.Symbol, err))
		}
	}

	return errors.Join(errs...)
}

var validate = newValidator()

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// fieldErrors turns validator failures into one error per field, keyed by
// the dotted config path (e.g. "batch.concurrency").
func fieldErrors(err error) []error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out = append(out, fmt.Errorf("%s: must satisfy %s, got %v", path, rule, fe.Value()))
	}
	return out
}

// ProviderChain returns the primary provider followed by its fallbacks,
// without duplicates.
func (c *Config) ProviderChain() []string {
	seen := make(map[string]bool)
	var chain []string
	for _, name := range append([]string{c.Provider.Name}, c.Provider.Fallback...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}
	return chain
}

// BaseParams returns the configured valuation defaults with no overrides.
func (c *Config) BaseParams() valuation.Params {
	return valuation.Params{
		Period:      c.Valuation.Period,
		RiskFree:    c.Valuation.RiskFree,
		ERP:         c.Valuation.ERP,
		GrowthDecay: c.Valuation.GrowthDecay,
		Terminal:    c.Valuation.Terminal,
	}
}

// Params returns the valuation parameters for a watchlist entry.
func (c *Config) Params(t TickerConfig) valuation.Params {
	p := c.BaseParams()
	if t.Period != nil {
		p.Period = *t.Period
	}
	if t.RiskFree != nil {
		p.RiskFree = *t.RiskFree
	}
	if t.ERP != nil {
		p.ERP = *t.ERP
	}
	if t.GrowthDecay != nil {
		p.GrowthDecay = *t.GrowthDecay
	}
	if t.Terminal != nil {
		p.Terminal = *t.Terminal
	}
	if t.Growth != nil {
		p.RevGrowthOverride = models.NewOverride(*t.Growth)
	}
	if t.Capex != nil {
		p.CapexRateOverride = models.NewOverride(*t.Capex)
	}
	return p
}

// Ticker returns the watchlist entry for symbol, if any.
func (c *Config) Ticker(symbol string) (TickerConfig, bool) {
	symbol = utils.NormalizeTicker(symbol)
	for _, t := range c.Batch.Tickers {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TickerConfig{}, false
}

// RetryPolicy returns the provider retry policy.
func (c *Config) RetryPolicy() infra.RetryPolicy {
	return infra.RetryPolicy{
		MaxRetries:     c.Provider.MaxRetries,
		InitialBackoff: c.Provider.Backoff,
		MaxBackoff:     c.Provider.MaxBackoff,
		Multiplier:     2,
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
