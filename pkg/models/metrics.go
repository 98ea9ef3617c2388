package models

import (
	"encoding/json"
	"math"
)

// Lookback is the number of most recent reporting periods used for metrics.
const Lookback = 4

// Billion is the scale applied to revenue, net debt and share counts.
const Billion = 1e9

// RawSeries is one statement line item over the lookback window,
// most recent period first. Missing observations are NaN.
type RawSeries []float64

// Missing returns the sentinel used for an absent observation.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Head returns at most n leading observations.
func (s RawSeries) Head(n int) RawSeries {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Present returns the number of non-missing observations.
func (s RawSeries) Present() int {
	n := 0
	for _, v := range s {
		if !IsMissing(v) {
			n++
		}
	}
	return n
}

// Metrics is the derived record consumed by the valuation engine.
// Revenue, NetDebt and OutstandingShares are in billions; rates are fractions.
type Metrics struct {
	Ticker            string  `json:"ticker"`
	Revenue           float64 `json:"revenue"`
	Beta              float64 `json:"beta"`     // NaN when the provider has none
	NetDebt           float64 `json:"net_debt"` // NaN means no debt adjustment
	OutstandingShares float64 `json:"outstanding_shares"`
	RevGrowthRate     float64 `json:"rev_growth_rate"`
	EBITDAMarginRate  float64 `json:"ebitda_margin_rate"`
	TaxRate           float64 `json:"tax_rate"`
	DARate            float64 `json:"d_and_a_rate"`
	CapexRate         float64 `json:"capex_rate"`
	DeltaWorkCapRate  float64 `json:"delta_work_cap_rate"`
}

// MarshalJSON encodes missing values as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ticker            string   `json:"ticker"`
		Revenue           *float64 `json:"revenue"`
		Beta              *float64 `json:"beta"`
		NetDebt           *float64 `json:"net_debt"`
		OutstandingShares *float64 `json:"outstanding_shares"`
		RevGrowthRate     *float64 `json:"rev_growth_rate"`
		EBITDAMarginRate  *float64 `json:"ebitda_margin_rate"`
		TaxRate           *float64 `json:"tax_rate"`
		DARate            *float64 `json:"d_and_a_rate"`
		CapexRate         *float64 `json:"capex_rate"`
		DeltaWorkCapRate  *float64 `json:"delta_work_cap_rate"`
	}{
		m.Ticker,
		Nullable(m.Revenue), Nullable(m.Beta), Nullable(m.NetDebt), Nullable(m.OutstandingShares),
		Nullable(m.RevGrowthRate), Nullable(m.EBITDAMarginRate), Nullable(m.TaxRate),
		Nullable(m.DARate), Nullable(m.CapexRate), Nullable(m.DeltaWorkCapRate),
	})
}

// Nullable returns nil for a missing or infinite value, else a pointer to v.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// HasNetDebt reports whether a net debt adjustment should be applied.
func (m Metrics) HasNetDebt() bool { return !IsMissing(m.NetDebt) }

// Override is an optional replacement for a derived rate.
type Override struct {
	Value float64 `json:"value" mapstructure:"value"`
	Set   bool    `json:"set"   mapstructure:"set"`
}

// NewOverride returns an override that is set to v.
func NewOverride(v float64) Override { return Override{Value: v, Set: true} }

// Apply returns the override value when set, otherwise derived.
func (o Override) Apply(derived float64) float64 {
	if o.Set {
		return o.Value
	}
	return derived
}
