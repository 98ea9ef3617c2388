// Package yfinance implements the Yahoo Finance statement provider.
// Annual statement rows come from the fundamentals-timeseries API and beta
// from the v10 quoteSummary API, both behind Yahoo's cookie and crumb
// handshake.
//
// Yahoo Finance is a free, no-API-key provider that covers listed equities
// worldwide.
package yfinance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/seenimoa/fairvalue/internal/infra"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

const (
	providerName = "yfinance"

	defaultSeedURL  = "https://fc.yahoo.com"
	defaultQueryURL = "https://query2.finance.yahoo.com"

	defaultTimeout  = 15 * time.Second
	defaultCacheTTL = 6 * time.Hour
	crumbTTL        = time.Hour
	fetchTimeout    = time.Minute

	// historyYears bounds the timeseries window; Yahoo serves at most
	// four or five annual periods regardless.
	historyYears = 10
)

// Provider implements provider.Provider for Yahoo Finance.
type Provider struct {
	client   *http.Client
	limiter  *rate.Limiter
	cache    *infra.Cache
	inflight singleflight.Group

	seedURL  string
	queryURL string

	crumbMu  sync.Mutex
	crumb    string
	crumbExp time.Time

	now func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client. A cookie jar is attached when the
// client has none, since the crumb handshake depends on session cookies.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithEndpoints points the provider at a different cookie seed page and
// query host.
func WithEndpoints(seedURL, queryURL string) Option {
	return func(p *Provider) {
		p.seedURL = strings.TrimRight(seedURL, "/")
		p.queryURL = strings.TrimRight(queryURL, "/")
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond int) Option {
	return func(p *Provider) { p.limiter = infra.NewRateLimiter(perSecond) }
}

// WithCacheTTL sets how long fetched statements and betas are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.cache = infra.NewCache(ttl) }
}

// New creates a new Yahoo Finance provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  infra.NewRateLimiter(2),
		cache:    infra.NewCache(defaultCacheTTL),
		seedURL:  defaultSeedURL,
		queryURL: defaultQueryURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c := *p.client
		c.Jar = jar
		p.client = &c
	}
	return p
}

func (p *Provider) Info() provider.ProviderInfo {
	return provider.ProviderInfo{
		Name:        providerName,
		Description: "Yahoo Finance - free global financial statements",
		Website:     "https://finance.yahoo.com",
	}
}

// Series returns the annual values of item for ticker, most recent first.
func (p *Provider) Series(ctx context.Context, ticker string, item provider.LineItem, maxPeriods int) (models.RawSeries, error) {
	symbol := utils.ToYahooTicker(ticker)
	rows, err := p.statement(ctx, symbol, item)
	if err != nil {
		return nil, provider.Fail(providerName, ticker, "series "+item.String(), err)
	}

	row, ok := rows[item.Name]
	if !ok {
		log.Debug().Str("ticker", ticker).Str("item", item.String()).Msg("line item not reported")
		return provider.MissingSeries(maxPeriods), nil
	}
	head := row.Head(maxPeriods)
	out := make(models.RawSeries, len(head))
	copy(out, head)
	return out, nil
}

// Beta returns the ticker's beta, or NaN when Yahoo does not report one.
func (p *Provider) Beta(ctx context.Context, ticker string) (float64, error) {
	symbol := utils.ToYahooTicker(ticker)
	key := symbol + "|beta"
	if v, ok := p.cache.Get(key); ok {
		return v.(float64), nil
	}

	v, err := infra.SharedFetch(ctx, &p.inflight, key, fetchTimeout, func(ctx context.Context) (any, error) {
		endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics,summaryDetail",
			p.queryURL, url.PathEscape(symbol))

		var resp yfQuoteSummaryResponse
		if err := p.fetchJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		if resp.QuoteSummary.Error != nil {
			return nil, resp.QuoteSummary.Error
		}

		beta := models.Missing()
		if len(resp.QuoteSummary.Result) > 0 {
			r := resp.QuoteSummary.Result[0]
			switch {
			case r.DefaultKeyStatistics != nil && r.DefaultKeyStatistics.Beta.Raw != nil:
				beta = *r.DefaultKeyStatistics.Beta.Raw
			case r.SummaryDetail != nil && r.SummaryDetail.Beta.Raw != nil:
				beta = *r.SummaryDetail.Beta.Raw
			}
		}
		p.cache.Set(key, beta)
		return beta, nil
	})
	if err != nil {
		return 0, provider.Fail(providerName, ticker, "beta", err)
	}
	return v.(float64), nil
}

// statement fetches every required row of item's statement in one request
// and aligns them on a shared set of periods. Concurrent callers asking for
// the same statement share one request.
func (p *Provider) statement(ctx context.Context, symbol string, item provider.LineItem) (map[string]models.RawSeries, error) {
	names := itemNames(item)
	key := symbol + "|" + string(item.Kind) + "|" + strings.Join(names, ",")
	if v, ok := p.cache.Get(key); ok {
		return v.(map[string]models.RawSeries), nil
	}

	v, err := infra.SharedFetch(ctx, &p.inflight, key, fetchTimeout, func(ctx context.Context) (any, error) {
		var resp yfTimeseriesResponse
		if err := p.fetchJSON(ctx, p.timeseriesURL(symbol, names), &resp); err != nil {
			return nil, err
		}
		if resp.Timeseries.Error != nil {
			return nil, resp.Timeseries.Error
		}
		rows, err := alignPeriods(resp.Timeseries.Result, names)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("symbol", symbol).Str("statement", string(item.Kind)).Int("rows", len(rows)).Msg("statement fetched")
		p.cache.Set(key, rows)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]models.RawSeries), nil
}

func (p *Provider) timeseriesURL(symbol string, names []string) string {
	types := make([]string, len(names))
	for i, n := range names {
		types[i] = typeKey(n)
	}
	now := p.now()
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", strings.Join(types, ","))
	q.Set("period1", fmt.Sprint(now.AddDate(-historyYears, 0, 0).Unix()))
	q.Set("period2", fmt.Sprint(now.Unix()))
	return fmt.Sprintf("%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?%s",
		p.queryURL, url.PathEscape(symbol), q.Encode())
}

// itemNames lists the required rows of item's statement, plus item itself
// when it is not one of them.
func itemNames(item provider.LineItem) []string {
	var names []string
	found := false
	for _, li := range provider.RequiredItems() {
		if li.Kind != item.Kind {
			continue
		}
		names = append(names, li.Name)
		if li == item {
			found = true
		}
	}
	if !found {
		names = append(names, item.Name)
	}
	return names
}

// typeKey maps a row name to its timeseries type ("Total Revenue" →
// "annualTotalRevenue").
func typeKey(name string) string {
	return "annual" + strings.ReplaceAll(name, " ", "")
}

// alignPeriods turns per-row timeseries results into rows that share the
// union of their reporting dates, newest first. A row with no reported
// value at all is left out so the caller treats it as unreported.
func alignPeriods(results []json.RawMessage, names []string) (map[string]models.RawSeries, error) {
	byType := make(map[string]string, len(names))
	for _, n := range names {
		byType[typeKey(n)] = n
	}

	values := make(map[string]map[string]float64)
	dateSet := make(map[string]struct{})
	for _, raw := range results {
		var meta yfTimeseriesMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("parse timeseries meta: %w", err)
		}
		if len(meta.Meta.Type) == 0 {
			continue
		}
		typ := meta.Meta.Type[0]
		name, ok := byType[typ]
		if !ok {
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse timeseries %s: %w", typ, err)
		}
		var points []*yfTimeseriesPoint
		if data, ok := fields[typ]; ok {
			if err := json.Unmarshal(data, &points); err != nil {
				return nil, fmt.Errorf("parse timeseries %s: %w", typ, err)
			}
		}

		vals := make(map[string]float64, len(points))
		for _, pt := range points {
			if pt == nil || pt.AsOfDate == "" {
				continue
			}
			dateSet[pt.AsOfDate] = struct{}{}
			if pt.ReportedValue.Raw != nil {
				vals[pt.AsOfDate] = *pt.ReportedValue.Raw
			}
		}
		if len(vals) > 0 {
			values[name] = vals
		}
	}

	// asOfDate is YYYY-MM-DD, so string order is date order.
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	rows := make(map[string]models.RawSeries, len(values))
	for name, vals := range values {
		row := make(models.RawSeries, len(dates))
		for i, d := range dates {
			if v, ok := vals[d]; ok {
				row[i] = v
			} else {
				row[i] = models.Missing()
			}
		}
		rows[name] = row
	}
	return rows, nil
}

// --- Shared helpers ---

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// fetchJSON performs a crumb-authenticated GET and decodes the response into
// dest. A 401 or 403 drops the cached crumb and retries once.
func (p *Provider) fetchJSON(ctx context.Context, endpoint string, dest any) error {
	data, err := p.getWithCrumb(ctx, endpoint)
	if isAuthError(err) {
		log.Debug().Str("url", endpoint).Msg("crumb rejected, refreshing")
		p.resetCrumb()
		data, err = p.getWithCrumb(ctx, endpoint)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

func (p *Provider) getWithCrumb(ctx context.Context, endpoint string) ([]byte, error) {
	crumb, err := p.getCrumb(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining crumb: %w", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	body, _, err := infra.DoGet(ctx, p.client, endpoint+sep+"crumb="+url.QueryEscape(crumb), jsonHeaders())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// getCrumb returns the cached crumb or performs the handshake: visit the
// seed page for session cookies, then read the crumb with those cookies.
func (p *Provider) getCrumb(ctx context.Context) (string, error) {
	p.crumbMu.Lock()
	defer p.crumbMu.Unlock()

	if p.crumb != "" && p.now().Before(p.crumbExp) {
		return p.crumb, nil
	}

	// Only the cookies matter here, not the status.
	seed, status, err := infra.DoGet(ctx, p.client, p.seedURL, nil)
	if err != nil && status == 0 {
		return "", fmt.Errorf("seed request: %w", err)
	}
	if seed != nil {
		seed.Close()
	}

	body, _, err := infra.DoGet(ctx, p.client, p.queryURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", fmt.Errorf("crumb request: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read crumb: %w", err)
	}
	crumb := strings.TrimSpace(string(raw))
	if crumb == "" {
		return "", fmt.Errorf("empty crumb returned")
	}

	p.crumb = crumb
	p.crumbExp = p.now().Add(crumbTTL)
	log.Debug().Str("crumb", crumb[:min(4, len(crumb))]+"...").Msg("Yahoo Finance crumb obtained")
	return crumb, nil
}

func (p *Provider) resetCrumb() {
	p.crumbMu.Lock()
	p.crumb = ""
	p.crumbExp = time.Time{}
	p.crumbMu.Unlock()
}

func isAuthError(err error) bool {
	var httpErr *infra.ErrHTTP
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
}
