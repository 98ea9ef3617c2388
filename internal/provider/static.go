package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// Company is the full statement snapshot of one ticker.
type Company struct {
	Beta float64
	Rows map[LineItem]models.RawSeries
}

// Static serves statement rows from memory. It is safe for concurrent use.
type Static struct {
	name string

	mu        sync.RWMutex
	companies map[string]Company
	failures  map[string]error
}

// NewStatic creates an empty in-memory provider.
func NewStatic(name string) *Static {
	return &Static{
		name:      name,
		companies: make(map[string]Company),
		failures:  make(map[string]error),
	}
}

// Add stores the snapshot for ticker.
func (s *Static) Add(ticker string, c Company) {
	s.mu.Lock()
	s.companies[strings.ToUpper(ticker)] = c
	s.mu.Unlock()
}

// Fail makes every request for ticker fail with err as a provider error.
func (s *Static) Fail(ticker string, err error) {
	s.mu.Lock()
	s.failures[strings.ToUpper(ticker)] = err
	s.mu.Unlock()
}

func (s *Static) Info() ProviderInfo {
	return ProviderInfo{Name: s.name, Description: "in-memory statements"}
}

func (s *Static) lookup(ticker, op string) (Company, error) {
	key := strings.ToUpper(ticker)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failures[key]; ok {
		return Company{}, Fail(s.name, ticker, op, err)
	}
	c, ok := s.companies[key]
	if !ok {
		return Company{}, Fail(s.name, ticker, op, fmt.Errorf("unknown ticker"))
	}
	return c, nil
}

func (s *Static) Series(_ context.Context, ticker string, item LineItem, maxPeriods int) (models.RawSeries, error) {
	c, err := s.lookup(ticker, "series "+item.String())
	if err != nil {
		return nil, err
	}
	row, ok := c.Rows[item]
	if !ok {
		return MissingSeries(maxPeriods), nil
	}
	out := make(models.RawSeries, len(row.Head(maxPeriods)))
	copy(out, row)
	return out, nil
}

func (s *Static) Beta(_ context.Context, ticker string) (float64, error) {
	c, err := s.lookup(ticker, "beta")
	if err != nil {
		return 0, err
	}
	return c.Beta, nil
}
