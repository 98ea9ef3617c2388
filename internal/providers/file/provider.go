// Package file implements an offline statement provider backed by one JSON
// document per ticker in a data directory (<dir>/<TICKER>.json):
//
//	{
//	  "ticker": "MSFT",
//	  "beta": 0.9,
//	  "statements": {
//	    "income":   {"Total Revenue": [245122000000, 211915000000, null]},
//	    "cashflow": {"Capital Expenditure": [-44477000000, -28107000000]},
//	    "balance":  {"Net Debt": [null, 12533000000]}
//	  }
//	}
//
// Rows are ordered most recent first; null marks a period with no value.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/fairvalue/internal/infra"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

const (
	providerName = "file"
	docTTL       = time.Hour
)

// ErrNoDataFile is wrapped in the provider error returned for a ticker with
// no document in the data directory.
var ErrNoDataFile = errors.New("no data file")

type document struct {
	Ticker     string                                           `json:"ticker"`
	Beta       *float64                                         `json:"beta"`
	Statements map[provider.StatementKind]map[string][]*float64 `json:"statements"`
}

// Provider implements provider.Provider over a directory of JSON documents.
// Parsed documents are kept in memory for an hour, or until Save replaces
// them.
type Provider struct {
	dir  string
	docs *infra.Cache
}

// New creates a provider reading documents from dir.
func New(dir string) *Provider {
	return &Provider{dir: dir, docs: infra.NewCache(docTTL)}
}

func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:        providerName,
		Description: "offline statements from " + p.dir,
	}
}

// Dir returns the data directory.
func (p *Provider) Dir() string { return p.dir }

func (p *Provider) Series(_ context.Context, ticker string, item provider.LineItem, maxPeriods int) (models.RawSeries, error) {
	doc, err := p.load(ticker)
	if err != nil {
		return nil, provider.Fail(providerName, ticker, "series "+item.String(), err)
	}

	row, ok := doc.Statements[item.Kind][item.Name]
	if !ok {
		return provider.MissingSeries(maxPeriods), nil
	}
	if maxPeriods >= 0 && len(row) > maxPeriods {
		row = row[:maxPeriods]
	}
	out := make(models.RawSeries, len(row))
	for i, v := range row {
		if v == nil {
			out[i] = models.Missing()
			continue
		}
		out[i] = *v
	}
	return out, nil
}

func (p *Provider) Beta(_ context.Context, ticker string) (float64, error) {
	doc, err := p.load(ticker)
	if err != nil {
		return 0, provider.Fail(providerName, ticker, "beta", err)
	}
	if doc.Beta == nil {
		return models.Missing(), nil
	}
	return *doc.Beta, nil
}

func (p *Provider) path(ticker string) string {
	return filepath.Join(p.dir, utils.FileName(ticker))
}

func (p *Provider) load(ticker string) (*document, error) {
	key := utils.NormalizeTicker(ticker)
	if doc, ok := p.docs.Get(key); ok {
		return doc.(*document), nil
	}

	path := p.path(ticker)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoDataFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for kind := range doc.Statements {
		if !kind.Valid() {
			return nil, fmt.Errorf("parse %s: unknown statement %q", path, kind)
		}
	}
	log.Debug().Str("ticker", key).Str("path", path).Msg("loaded statement document")
	p.docs.Set(key, &doc)
	return &doc, nil
}

// --- Snapshots ---

// Snapshot is every required row and the beta of one ticker, as captured
// from another provider.
type Snapshot struct {
	Ticker string
	Beta   float64
	Rows   map[provider.LineItem]models.RawSeries
}

// Capture reads every required line item and the beta of ticker from src.
func Capture(ctx context.Context, src provider.Provider, ticker string, maxPeriods int) (*Snapshot, error) {
	s := &Snapshot{
		Ticker: utils.NormalizeTicker(ticker),
		Rows:   make(map[provider.LineItem]models.RawSeries),
	}
	for _, item := range provider.RequiredItems() {
		row, err := src.Series(ctx, ticker, item, maxPeriods)
		if err != nil {
			return nil, err
		}
		s.Rows[item] = row
	}
	beta, err := src.Beta(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.Beta = beta
	return s, nil
}

// Save writes s to the data directory, replacing any existing document, and
// returns the written path.
func (p *Provider) Save(s *Snapshot) (string, error) {
	doc := document{
		Ticker:     s.Ticker,
		Beta:       models.Nullable(s.Beta),
		Statements: make(map[provider.StatementKind]map[string][]*float64),
	}
	for item, row := range s.Rows {
		rows, ok := doc.Statements[item.Kind]
		if !ok {
			rows = make(map[string][]*float64)
			doc.Statements[item.Kind] = rows
		}
		vals := make([]*float64, len(row))
		for i, v := range row {
			vals[i] = models.Nullable(v)
		}
		rows[item.Name] = vals
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", s.Ticker, err)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	path := p.path(s.Ticker)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}

	p.docs.Invalidate(utils.NormalizeTicker(s.Ticker))
	return path, nil
}
