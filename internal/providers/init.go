// Package providers builds the concrete statement providers named in the
// configuration and registers them.
package providers

import (
	"fmt"

	"github.com/seenimoa/fairvalue/internal/config"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/internal/providers/file"
	"github.com/seenimoa/fairvalue/internal/providers/fmp"
	"github.com/seenimoa/fairvalue/internal/providers/yfinance"
)

// RegisterAllTo creates and registers every provider cfg allows. Providers
// that require an API key are only registered when the key is configured.
func RegisterAllTo(reg *provider.Registry, cfg *config.Config) error {
	// --- YFinance (free, no API key) ---
	yf := yfinance.New(
		yfinance.WithRateLimit(cfg.Provider.RateLimit),
		yfinance.WithCacheTTL(cfg.Provider.CacheTTL),
	)
	if err := reg.Register(yf); err != nil {
		return err
	}

	// --- Local snapshots ---
	if cfg.Provider.DataDir != "" {
		if err := reg.Register(file.New(cfg.Provider.DataDir)); err != nil {
			return err
		}
	}

	// --- FMP (requires API key) ---
	if cfg.Provider.FMPKey != "" {
		fp := fmp.New(cfg.Provider.FMPKey,
			fmp.WithRateLimit(cfg.Provider.RateLimit),
			fmp.WithCacheTTL(cfg.Provider.CacheTTL),
		)
		if err := reg.Register(fp); err != nil {
			return err
		}
	}

	return nil
}

// Build registers the providers and resolves the configured chain into the
// provider the valuer reads from.
func Build(cfg *config.Config) (provider.Provider, *provider.Registry, error) {
	reg := provider.NewRegistry()
	if err := RegisterAllTo(reg, cfg); err != nil {
		return nil, nil, err
	}
	p, err := reg.Chain(cfg.ProviderChain()...)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve provider chain: %w", err)
	}
	return p, reg, nil
}
