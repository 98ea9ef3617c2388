// Package metrics turns raw multi-period statement rows into the single
// trailing rates the valuation engine consumes.
package metrics

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// Field names used in derivation errors.
const (
	FieldRevenue      = "revenue"
	FieldNetDebt      = "net_debt"
	FieldShares       = "outstanding_shares"
	FieldRevGrowth    = "rev_growth_rate"
	FieldEBITDAMargin = "ebitda_margin_rate"
	FieldTaxRate      = "tax_rate"
	FieldDARate       = "d_and_a_rate"
	FieldCapexRate    = "capex_rate"
	FieldDeltaWorkCap = "delta_work_cap_rate"
)

// Inputs holds the nine raw line items for one ticker.
type Inputs struct {
	Revenue      models.RawSeries
	EBITDA       models.RawSeries
	TaxProvision models.RawSeries
	PretaxIncome models.RawSeries
	DA           models.RawSeries
	Capex        models.RawSeries
	DeltaWorkCap models.RawSeries
	NetDebt      models.RawSeries
	Shares       models.RawSeries
	Beta         float64
}

// FirstNotNaN returns the first present value in series, most recent first.
func FirstNotNaN(series models.RawSeries) (float64, bool) {
	for _, v := range series {
		if !models.IsMissing(v) {
			return v, true
		}
	}
	return 0, false
}

// RateCalc averages num[i]/den[i] over index-aligned pairs where both sides
// are present and returns the absolute value of the mean. A zero
// denominator makes the pair invalid, as in GrowthRate.
func RateCalc(field string, num, den models.RawSeries) (float64, error) {
	n := min(len(num), len(den))
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		if models.IsMissing(num[i]) || models.IsMissing(den[i]) || den[i] == 0 {
			continue
		}
		sum += num[i] / den[i]
		count++
	}
	if count == 0 {
		return 0, &models.InsufficientPairsError{Field: field}
	}
	return math.Abs(sum / float64(count)), nil
}

// GrowthRate averages 1 - newer/older over adjacent present periods of a
// most-recent-first revenue series and returns the absolute value.
func GrowthRate(revenue models.RawSeries) (float64, error) {
	var sum float64
	var count int
	for i := 0; i+1 < len(revenue); i++ {
		newer, older := revenue[i], revenue[i+1]
		if models.IsMissing(newer) || models.IsMissing(older) || older == 0 {
			continue
		}
		sum += 1 - newer/older
		count++
	}
	if count == 0 {
		return 0, &models.InsufficientPairsError{Field: FieldRevGrowth}
	}
	return math.Abs(sum / float64(count)), nil
}

// Derive builds the metrics record for ticker. Every series is truncated to
// the lookback window before use.
func Derive(ticker string, in Inputs) (models.Metrics, error) {
	rev := in.Revenue.Head(models.Lookback)
	log.Debug().Str("ticker", ticker).
		Int("revenue_periods", rev.Present()).
		Int("ebitda_periods", in.EBITDA.Head(models.Lookback).Present()).
		Int("pretax_periods", in.PretaxIncome.Head(models.Lookback).Present()).
		Msg("deriving metrics")

	m := models.Metrics{Ticker: ticker, Beta: in.Beta}

	revenue, ok := FirstNotNaN(rev)
	if !ok {
		return models.Metrics{}, &models.MissingDataError{Field: FieldRevenue}
	}
	m.Revenue = revenue / models.Billion

	shares, ok := FirstNotNaN(in.Shares.Head(models.Lookback))
	if !ok {
		return models.Metrics{}, &models.MissingDataError{Field: FieldShares}
	}
	m.OutstandingShares = shares / models.Billion

	m.NetDebt = models.Missing()
	if debt, ok := FirstNotNaN(in.NetDebt.Head(models.Lookback)); ok {
		m.NetDebt = debt / models.Billion
	}

	var err error
	if m.RevGrowthRate, err = GrowthRate(rev); err != nil {
		return models.Metrics{}, err
	}

	rates := []struct {
		field string
		num   models.RawSeries
		den   models.RawSeries
		dst   *float64
	}{
		{FieldEBITDAMargin, in.EBITDA, rev, &m.EBITDAMarginRate},
		{FieldTaxRate, in.TaxProvision, in.PretaxIncome, &m.TaxRate},
		{FieldDARate, in.DA, rev, &m.DARate},
		{FieldCapexRate, in.Capex, rev, &m.CapexRate},
		{FieldDeltaWorkCap, in.DeltaWorkCap, rev, &m.DeltaWorkCapRate},
	}
	for _, r := range rates {
		v, err := RateCalc(r.field, r.num.Head(models.Lookback), r.den.Head(models.Lookback))
		if err != nil {
			return models.Metrics{}, err
		}
		*r.dst = v
	}

	return m, nil
}
