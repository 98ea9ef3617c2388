package provider

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/seenimoa/fairvalue/pkg/models"
)

func sampleStatic(name string) *Static {
	s := NewStatic(name)
	s.Add("MSFT", Company{
		Beta: 0.9,
		Rows: map[LineItem]models.RawSeries{
			TotalRevenue: {245e9, 212e9, 198e9, 168e9, 143e9},
		},
	})
	return s
}

func TestRequiredItems(t *testing.T) {
	items := RequiredItems()
	if len(items) != 9 {
		t.Fatalf("expected 9 required line items, got %d", len(items))
	}
	for _, it := range items {
		if !it.Kind.Valid() {
			t.Errorf("%s has invalid statement kind", it)
		}
		if it.Name == "" {
			t.Errorf("%s has empty name", it)
		}
	}
}

func TestStatementKindValid(t *testing.T) {
	if StatementKind("ledger").Valid() {
		t.Error("unknown statement kind should be invalid")
	}
}

func TestStaticSeriesTruncates(t *testing.T) {
	s := sampleStatic("mem")
	got, err := s.Series(context.Background(), "msft", TotalRevenue, 4)
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	if len(got) != 4 || got[0] != 245e9 {
		t.Errorf("unexpected series %v", got)
	}
}

func TestStaticSeriesMissingItem(t *testing.T) {
	s := sampleStatic("mem")
	got, err := s.Series(context.Background(), "MSFT", NetDebt, 4)
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("entry %d: expected NaN, got %f", i, v)
		}
	}
}

func TestStaticUnknownTicker(t *testing.T) {
	s := sampleStatic("mem")
	_, err := s.Beta(context.Background(), "ZZZZ")
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "mem" || pe.Ticker != "ZZZZ" {
		t.Errorf("unexpected error fields: %+v", pe)
	}
}

func TestStaticFail(t *testing.T) {
	s := sampleStatic("mem")
	cause := errors.New("unreachable")
	s.Fail("MSFT", cause)
	_, err := s.Series(context.Background(), "MSFT", TotalRevenue, 4)
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

// --- Registry Tests ---

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(sampleStatic("mem")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := reg.Get("mem")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Info().Name != "mem" {
		t.Errorf("expected mem, got %s", got.Info().Name)
	}

	_, err = reg.Get("nope")
	var nf *ErrProviderNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistryRegisterEmptyName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewStatic("")); err == nil {
		t.Error("expected error for empty provider name")
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(sampleStatic("zeta"))
	reg.Register(sampleStatic("alpha"))

	infos := reg.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(infos))
	}
	if infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Errorf("expected sorted names, got %s, %s", infos[0].Name, infos[1].Name)
	}
}

func TestRegistryChainFallsBack(t *testing.T) {
	primary := sampleStatic("primary")
	primary.Fail("MSFT", errors.New("HTTP 503"))
	secondary := sampleStatic("secondary")

	reg := NewRegistry()
	reg.Register(primary)
	reg.Register(secondary)

	p, err := reg.Chain("primary", "secondary")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if p.Info().Name != "primary,secondary" {
		t.Errorf("unexpected chain name %q", p.Info().Name)
	}

	beta, err := p.Beta(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("Beta via fallback failed: %v", err)
	}
	if beta != 0.9 {
		t.Errorf("expected beta 0.9, got %f", beta)
	}
}

func TestRegistryChainAllFail(t *testing.T) {
	a := sampleStatic("a")
	a.Fail("MSFT", errors.New("down"))
	b := sampleStatic("b")
	b.Fail("MSFT", errors.New("down too"))

	reg := NewRegistry()
	reg.Register(a)
	reg.Register(b)

	p, _ := reg.Chain("a", "b")
	_, err := p.Series(context.Background(), "MSFT", TotalRevenue, 4)
	var pe *models.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError from last provider, got %v", err)
	}
	if pe.Provider != "b" {
		t.Errorf("expected last error from b, got %s", pe.Provider)
	}
}

func TestRegistryChainSingle(t *testing.T) {
	reg := NewRegistry()
	s := sampleStatic("only")
	reg.Register(s)
	p, err := reg.Chain("only")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if p != Provider(s) {
		t.Error("single-name chain should return the provider itself")
	}
	if _, err := reg.Chain(); err == nil {
		t.Error("expected error for empty chain")
	}
	if _, err := reg.Chain("only", "missing"); err == nil {
		t.Error("expected error for unknown provider in chain")
	}
}

func TestRegistryChainPinsTicker(t *testing.T) {
	primary := sampleStatic("primary")
	secondary := sampleStatic("secondary")
	secondary.Add("NVDA", Company{Beta: 1.7})

	reg := NewRegistry()
	reg.Register(primary)
	reg.Register(secondary)
	p, _ := reg.Chain("primary", "secondary")
	ctx := context.Background()

	if _, err := p.Beta(ctx, "MSFT"); err != nil {
		t.Fatalf("Beta failed: %v", err)
	}

	// Once primary has answered for MSFT, its rows never mix with secondary's.
	primary.Fail("MSFT", errors.New("HTTP 503"))
	_, err := p.Series(ctx, "msft", TotalRevenue, 4)
	var pe *models.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "primary" {
		t.Fatalf("expected pinned primary error, got %v", err)
	}

	// A ticker primary never answered for still falls through.
	beta, err := p.Beta(ctx, "NVDA")
	if err != nil {
		t.Fatalf("NVDA fallback failed: %v", err)
	}
	if beta != 1.7 {
		t.Errorf("expected beta 1.7 from secondary, got %f", beta)
	}
}
