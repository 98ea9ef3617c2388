package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// Registry is a thread-safe registry of statement providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry. Duplicate registrations
// overwrite the previous entry.
func (r *Registry) Register(p Provider) error {
	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	r.mu.Lock()
	r.providers[info.Name] = p
	r.mu.Unlock()
	return nil
}

// Get returns a provider by name, or an error if not found.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return p, nil
}

// List returns info about all registered providers, sorted by name.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Chain resolves names into a single Provider that tries each in order,
// moving on only when a provider fails with a *models.ProviderError.
// The first provider that answers for a ticker is pinned, and every later
// call for that ticker goes to it alone, so all rows of one ticker come
// from one source.
func (r *Registry) Chain(names ...string) (Provider, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no provider names given")
	}
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return &fallback{providers: providers, pinned: make(map[string]int)}, nil
}

// fallback tries providers in priority order until one answers for a ticker.
type fallback struct {
	providers []Provider

	mu     sync.Mutex
	pinned map[string]int // ticker -> index into providers
}

func (f *fallback) Info() ProviderInfo {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Info().Name
	}
	return ProviderInfo{Name: strings.Join(names, ","), Description: "fallback chain"}
}

func (f *fallback) Series(ctx context.Context, ticker string, item LineItem, maxPeriods int) (models.RawSeries, error) {
	return try(f, ticker, item.String(), func(p Provider) (models.RawSeries, error) {
		return p.Series(ctx, ticker, item, maxPeriods)
	})
}

func (f *fallback) Beta(ctx context.Context, ticker string) (float64, error) {
	return try(f, ticker, "beta", func(p Provider) (float64, error) {
		return p.Beta(ctx, ticker)
	})
}

// pin records i as the source of ticker unless another provider got there
// first, and returns the index that owns the ticker.
func (f *fallback) pin(ticker string, i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.pinned[ticker]; ok {
		return owner
	}
	f.pinned[ticker] = i
	log.Debug().Str("provider", f.providers[i].Info().Name).Str("ticker", ticker).Msg("provider pinned")
	return i
}

func (f *fallback) owner(ticker string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.pinned[ticker]
	return i, ok
}

func try[T any](f *fallback, ticker, what string, call func(Provider) (T, error)) (T, error) {
	key := strings.ToUpper(ticker)
	if i, ok := f.owner(key); ok {
		return call(f.providers[i])
	}

	var zero T
	var lastErr error
	for i, p := range f.providers {
		v, err := call(p)
		if err == nil {
			// A concurrent call may have pinned an earlier answer.
			if owner := f.pin(key, i); owner != i {
				return call(f.providers[owner])
			}
			return v, nil
		}
		if !isProviderError(err) {
			return zero, err
		}
		log.Warn().Err(err).Str("provider", p.Info().Name).Str("ticker", ticker).Msg("provider failed, trying next")
		lastErr = err
	}
	return zero, fmt.Errorf("all providers failed for %s %s: %w", ticker, what, lastErr)
}

func isProviderError(err error) bool {
	var pe *models.ProviderError
	return errors.As(err, &pe)
}
