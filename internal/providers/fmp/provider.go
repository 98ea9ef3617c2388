// Package fmp implements the Financial Modeling Prep (FMP) statement provider.
// FMP serves annual income, balance sheet and cash flow statements via a
// REST API with API key authentication.
//
// Free tier: 250 requests/day.
// Docs: https://financialmodelingprep.com/developer/docs
package fmp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/seenimoa/fairvalue/internal/infra"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

const (
	providerName   = "fmp"
	defaultBaseURL = "https://financialmodelingprep.com/api/v3"

	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv = "FMP_API_KEY"

	defaultCacheTTL = time.Hour
	statementLimit  = 10
	fetchTimeout    = time.Minute
)

// Statement endpoints.
const (
	incomeStatement   = "income-statement"
	balanceSheet      = "balance-sheet-statement"
	cashFlowStatement = "cash-flow-statement"
)

// field locates a line item in FMP's statements.
type field struct {
	endpoint string
	name     string
}

// fields maps each line item onto FMP's naming. FMP reports share count on
// the income statement rather than the balance sheet.
var fields = map[provider.LineItem]field{
	provider.TotalRevenue:                {incomeStatement, "revenue"},
	provider.EBITDA:                      {incomeStatement, "ebitda"},
	provider.TaxProvision:                {incomeStatement, "incomeTaxExpense"},
	provider.PretaxIncome:                {incomeStatement, "incomeBeforeTax"},
	provider.DepreciationAndAmortization: {cashFlowStatement, "depreciationAndAmortization"},
	provider.CapitalExpenditure:          {cashFlowStatement, "capitalExpenditure"},
	provider.ChangeInWorkingCapital:      {cashFlowStatement, "changeInWorkingCapital"},
	provider.NetDebt:                     {balanceSheet, "netDebt"},
	provider.ShareIssued:                 {incomeStatement, "weightedAverageShsOut"},
}

// Provider implements provider.Provider for FMP.
type Provider struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	cache    *infra.Cache
	inflight singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithBaseURL points the provider at a different API root.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond int) Option {
	return func(p *Provider) { p.limiter = infra.NewRateLimiter(perSecond) }
}

// WithCacheTTL sets how long fetched statements are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.cache = infra.NewCache(ttl) }
}

// New creates a new FMP provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: infra.NewRateLimiter(5),
		cache:   infra.NewCache(defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:        providerName,
		Description: "Financial Modeling Prep - annual statements (API key)",
		Website:     "https://financialmodelingprep.com",
	}
}

// Series returns the annual values of item for ticker, most recent first.
func (p *Provider) Series(ctx context.Context, ticker string, item provider.LineItem, maxPeriods int) (models.RawSeries, error) {
	f, ok := fields[item]
	if !ok {
		return provider.MissingSeries(maxPeriods), nil
	}

	records, err := p.statements(ctx, utils.NormalizeTicker(ticker), f.endpoint)
	if err != nil {
		return nil, provider.Fail(providerName, ticker, "series "+item.String(), err)
	}
	if len(records) == 0 {
		return provider.MissingSeries(maxPeriods), nil
	}

	if maxPeriods >= 0 && len(records) > maxPeriods {
		records = records[:maxPeriods]
	}
	out := make(models.RawSeries, len(records))
	for i, rec := range records {
		out[i] = number(rec[f.name])
	}
	return out, nil
}

// Beta returns the profile beta, or NaN when FMP has none.
func (p *Provider) Beta(ctx context.Context, ticker string) (float64, error) {
	symbol := utils.NormalizeTicker(ticker)
	var profiles []fmpProfile
	if err := p.fetchJSON(ctx, "/profile/"+url.PathEscape(symbol), nil, &profiles); err != nil {
		return 0, provider.Fail(providerName, ticker, "beta", err)
	}
	if len(profiles) == 0 || profiles[0].Beta == nil {
		return models.Missing(), nil
	}
	return *profiles[0].Beta, nil
}

// statements returns the annual statements at endpoint, newest first.
func (p *Provider) statements(ctx context.Context, symbol, endpoint string) ([]fmpRecord, error) {
	key := symbol + "|" + endpoint
	if v, ok := p.cache.Get(key); ok {
		return v.([]fmpRecord), nil
	}

	v, err := infra.SharedFetch(ctx, &p.inflight, key, fetchTimeout, func(ctx context.Context) (any, error) {
		q := url.Values{}
		q.Set("period", "annual")
		q.Set("limit", fmt.Sprint(statementLimit))

		var records []fmpRecord
		path := "/" + endpoint + "/" + url.PathEscape(symbol)
		if err := p.fetchJSON(ctx, path, q, &records); err != nil {
			return nil, fmt.Errorf("fmp %s %s: %w", endpoint, symbol, err)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return text(records[i]["date"]) > text(records[j]["date"])
		})
		p.cache.Set(key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]fmpRecord), nil
}

// --- Shared helpers ---

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// fetchJSON performs a GET request to FMP and decodes the response. FMP
// reports failures as an object where an array is expected.
func (p *Provider) fetchJSON(ctx context.Context, path string, q url.Values, dest any) error {
	if p.apiKey == "" {
		return fmt.Errorf("fmp: %s not set", APIKeyEnv)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("apikey", p.apiKey)
	body, _, err := infra.DoGet(ctx, p.client, p.baseURL+path+"?"+q.Encode(), jsonHeaders())
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var apiErr fmpError
		if json.Unmarshal(trimmed, &apiErr) == nil && apiErr.Message != "" {
			return &apiErr
		}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse FMP JSON: %w", err)
	}
	return nil
}

// number decodes a raw JSON number; absent, null or non-numeric is missing.
func number(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return models.Missing()
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return models.Missing()
	}
	return *v
}

func text(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}
