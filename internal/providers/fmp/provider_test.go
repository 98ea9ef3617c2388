package fmp

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/pkg/models"
)

const incomeJSON = `[
 {"date":"2023-06-30","symbol":"MSFT","period":"FY","revenue":211915000000,"ebitda":105140000000,"incomeTaxExpense":16950000000,"incomeBeforeTax":89311000000,"weightedAverageShsOut":7446000000},
 {"date":"2024-06-30","symbol":"MSFT","period":"FY","revenue":245122000000,"ebitda":133009000000,"incomeTaxExpense":19651000000,"incomeBeforeTax":107787000000,"weightedAverageShsOut":7469000000},
 {"date":"2022-06-30","symbol":"MSFT","period":"FY","revenue":198270000000,"ebitda":null,"incomeTaxExpense":10978000000,"incomeBeforeTax":83716000000,"weightedAverageShsOut":7496000000}
]`

func newTestServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "test-key" {
			w.Write([]byte(`{"Error Message":"Invalid API KEY."}`))
			return
		}
		switch r.URL.Path {
		case "/income-statement/MSFT":
			calls.Add(1)
			if r.URL.Query().Get("period") != "annual" {
				t.Errorf("expected annual period, got %q", r.URL.Query().Get("period"))
			}
			w.Write([]byte(incomeJSON))
		case "/balance-sheet-statement/MSFT", "/cash-flow-statement/MSFT":
			w.Write([]byte(`[]`))
		case "/profile/MSFT":
			w.Write([]byte(`[{"symbol":"MSFT","companyName":"Microsoft Corporation","beta":0.904}]`))
		case "/profile/NOBETA":
			w.Write([]byte(`[{"symbol":"NOBETA"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, key string, calls *atomic.Int32) *Provider {
	srv := newTestServer(t, calls)
	return New(key, WithHTTPClient(srv.Client()), WithBaseURL(srv.URL), WithRateLimit(0))
}

func TestProviderInfo(t *testing.T) {
	info := New("k").Info()
	if info.Name != "fmp" {
		t.Errorf("expected name fmp, got %s", info.Name)
	}
	if info.Website == "" {
		t.Error("expected non-empty website")
	}
}

func TestFieldsCoverRequiredItems(t *testing.T) {
	for _, item := range provider.RequiredItems() {
		if _, ok := fields[item]; !ok {
			t.Errorf("no FMP field for %s", item)
		}
	}
}

func TestSeriesSortsNewestFirst(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, "test-key", &calls)
	ctx := context.Background()

	rev, err := p.Series(ctx, "msft", provider.TotalRevenue, 4)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	want := models.RawSeries{245122000000, 211915000000, 198270000000}
	if len(rev) != len(want) {
		t.Fatalf("got %v, want %v", rev, want)
	}
	for i := range want {
		if rev[i] != want[i] {
			t.Errorf("revenue[%d]: got %f, want %f", i, rev[i], want[i])
		}
	}

	ebitda, err := p.Series(ctx, "MSFT", provider.EBITDA, 4)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if !math.IsNaN(ebitda[2]) {
		t.Errorf("null EBITDA should be missing, got %f", ebitda[2])
	}

	shares, err := p.Series(ctx, "MSFT", provider.ShareIssued, 1)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(shares) != 1 || shares[0] != 7469000000 {
		t.Errorf("unexpected shares %v", shares)
	}

	if calls.Load() != 1 {
		t.Errorf("expected one income-statement request, got %d", calls.Load())
	}
}

func TestSeriesEmptyStatementIsMissing(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, "test-key", &calls)

	got, err := p.Series(context.Background(), "MSFT", provider.NetDebt, 4)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	for _, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("expected NaN, got %f", v)
		}
	}
}

func TestBeta(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, "test-key", &calls)

	beta, err := p.Beta(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("Beta: %v", err)
	}
	if beta != 0.904 {
		t.Errorf("expected 0.904, got %f", beta)
	}

	beta, err = p.Beta(context.Background(), "NOBETA")
	if err != nil {
		t.Fatalf("Beta: %v", err)
	}
	if !math.IsNaN(beta) {
		t.Errorf("expected NaN beta, got %f", beta)
	}
}

func TestInvalidKeyIsProviderError(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, "wrong", &calls)

	_, err := p.Series(context.Background(), "MSFT", provider.TotalRevenue, 4)
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	var apiErr *fmpError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected fmpError in chain, got %v", err)
	}
	if apiErr.Message != "Invalid API KEY." {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestMissingKey(t *testing.T) {
	_, err := New("").Beta(context.Background(), "MSFT")
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}
