package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// flatMetrics is the worked example: revenue 100, 10% growth, 30% EBITDA
// margin, 5% D&A and capex, 20% tax, beta 1.
func flatMetrics() models.Metrics {
	return models.Metrics{
		Ticker:            "TEST",
		Revenue:           100,
		Beta:              1.0,
		NetDebt:           0,
		OutstandingShares: 10,
		RevGrowthRate:     0.10,
		EBITDAMarginRate:  0.30,
		TaxRate:           0.20,
		DARate:            0.05,
		CapexRate:         0.05,
		DeltaWorkCapRate:  0,
	}
}

func flatParams() Params {
	return Params{Period: 1, RiskFree: 0.04, ERP: 0.05, GrowthDecay: 0, Terminal: 0.10}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 10, p.Period)
	assert.Equal(t, 0.04, p.RiskFree)
	assert.Equal(t, 0.0417, p.ERP)
	assert.Equal(t, 0.01, p.GrowthDecay)
	assert.Equal(t, 0.025, p.Terminal)
	assert.False(t, p.RevGrowthOverride.Set)
	assert.False(t, p.CapexRateOverride.Set)
	assert.NoError(t, p.Validate())
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.Period = 0
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.GrowthDecay = -0.01
	assert.Error(t, p.Validate())
}

func TestDiscountRate(t *testing.T) {
	assert.InDelta(t, 0.09, DiscountRate(0.04, 1.0, 0.05), 1e-12)
	assert.InDelta(t, 0.04+1.2*0.0417, DiscountRate(0.04, 1.2, 0.0417), 1e-12)
}

func TestGrowthScheduleMonotonic(t *testing.T) {
	tests := []struct {
		name                     string
		initial, decay, terminal float64
		period                   int
	}{
		{"default decay", 0.18, 0.01, 0.04, 10},
		{"large decay", 0.30, 0.07, 0.025, 12},
		{"no decay", 0.12, 0, 0.03, 5},
		{"already near terminal", 0.03, 0.01, 0.025, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := GrowthSchedule(tt.initial, tt.decay, tt.terminal, tt.period)
			require.Len(t, s, tt.period)
			for i := range s {
				assert.GreaterOrEqual(t, s[i], tt.terminal-tt.decay-1e-12, "year %d below floor", i+1)
				if i > 0 {
					assert.LessOrEqual(t, s[i], s[i-1], "year %d increased", i+1)
				}
			}
		})
	}
}

func TestGrowthScheduleStepThreshold(t *testing.T) {
	// 0.5 → 0.375 → 0.25, then 0.25-0.125 is not above 0.125 so it holds.
	s := GrowthSchedule(0.5, 0.125, 0.125, 5)
	assert.Equal(t, []float64{0.375, 0.25, 0.25, 0.25, 0.25}, s)
}

func TestGrowthScheduleEmpty(t *testing.T) {
	assert.Nil(t, GrowthSchedule(0.1, 0.01, 0.02, 0))
}

func TestTerminalValueExponentIsPeriod(t *testing.T) {
	for _, period := range []int{1, 5, 10, 25} {
		term, err := TerminalValue(10, 0.09, 0.03, period)
		require.NoError(t, err)
		assert.Equal(t, period, term.Exponent)
		want := term.Value / math.Pow(1.09, float64(period))
		assert.InDelta(t, want, term.PV, 1e-9)
	}
}

func TestTerminalValueDegenerate(t *testing.T) {
	_, err := TerminalValue(10, 0.05, 0.05, 10)
	var degenerate *models.DegenerateModelError
	require.ErrorAs(t, err, &degenerate)

	_, err = TerminalValue(10, 0.05, 0.06, 10)
	require.ErrorAs(t, err, &degenerate)
}

func TestValueWorkedExampleIsDegenerate(t *testing.T) {
	// Discount rate 0.09 is below terminal growth 0.10.
	_, err := Value(flatMetrics(), flatParams())
	var degenerate *models.DegenerateModelError
	require.ErrorAs(t, err, &degenerate)
}

func TestValueWorkedExample(t *testing.T) {
	p := flatParams()
	p.Terminal = 0.02

	res, err := Value(flatMetrics(), p)
	require.NoError(t, err)

	require.Len(t, res.Years, 1)
	y := res.Years[0]
	assert.InDelta(t, 0.09, res.DiscountRate, 1e-12)
	assert.InDelta(t, 110, y.Revenue, 1e-9)
	assert.InDelta(t, 33, y.EBITDA, 1e-9)
	assert.InDelta(t, 5.5, y.DA, 1e-9)
	assert.InDelta(t, 27.5, y.EBIT, 1e-9)
	assert.InDelta(t, 22, y.FCFF, 1e-9)
	assert.InDelta(t, 22/1.09, res.PeriodPV, 1e-9)

	wantTV := 22 * 1.02 / (0.09 - 0.02)
	assert.InDelta(t, wantTV, res.Terminal.Value, 1e-9)
	assert.InDelta(t, wantTV/1.09, res.Terminal.PV, 1e-9)

	wantEV := 22/1.09 + wantTV/1.09
	assert.InDelta(t, wantEV, res.EnterpriseValue, 1e-9)
	assert.True(t, res.NetDebtApplied)
	assert.InDelta(t, wantEV, res.EquityValue, 1e-9)
	assert.InDelta(t, wantEV/10, res.FairValue, 1e-9)
}

func TestValueNetDebtAbsent(t *testing.T) {
	m := flatMetrics()
	m.NetDebt = math.NaN()
	p := flatParams()
	p.Terminal = 0.02

	res, err := Value(m, p)
	require.NoError(t, err)
	assert.False(t, res.NetDebtApplied)
	assert.Equal(t, res.EnterpriseValue, res.EquityValue)
}

func TestValueNetDebtSubtracted(t *testing.T) {
	m := flatMetrics()
	m.NetDebt = 50
	p := flatParams()
	p.Terminal = 0.02

	res, err := Value(m, p)
	require.NoError(t, err)
	assert.InDelta(t, res.EnterpriseValue-50, res.EquityValue, 1e-9)
	assert.InDelta(t, (res.EnterpriseValue-50)/10, res.FairValue, 1e-9)
}

func TestValueOverrides(t *testing.T) {
	p := flatParams()
	p.Terminal = 0.02
	p.RevGrowthOverride = models.NewOverride(0.20)
	p.CapexRateOverride = models.NewOverride(0)

	res, err := Value(flatMetrics(), p)
	require.NoError(t, err)
	assert.Equal(t, 0.20, res.GrowthRate)
	assert.Equal(t, 0.0, res.CapexRate, "a zero override is honoured")
	assert.InDelta(t, 120, res.Years[0].Revenue, 1e-9)
	assert.Zero(t, res.Years[0].Capex)
}

func TestValueMultiYearMatchesManualDiscounting(t *testing.T) {
	m := flatMetrics()
	p := Params{Period: 10, RiskFree: 0.04, ERP: 0.0417, GrowthDecay: 0.01, Terminal: 0.025}

	res, err := Value(m, p)
	require.NoError(t, err)
	require.Len(t, res.Years, 10)

	var sum float64
	for _, y := range res.Years {
		sum += y.FCFF / math.Pow(1+res.DiscountRate, float64(y.Year))
	}
	assert.InDelta(t, sum, res.PeriodPV, 1e-9)
	assert.InDelta(t, res.PeriodPV+res.Terminal.PV, res.EnterpriseValue, 1e-9)
	assert.Equal(t, 10, res.Terminal.Exponent)
	assert.InDelta(t, res.Years[9].FCFF*1.025, res.Terminal.NextFCFF, 1e-9)
}

func TestValueFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Metrics, *Params)
		kind   string
	}{
		{"zero shares", func(m *models.Metrics, _ *Params) { m.OutstandingShares = 0 }, models.KindDegenerateModel},
		{"missing shares", func(m *models.Metrics, _ *Params) { m.OutstandingShares = math.NaN() }, models.KindDegenerateModel},
		{"missing beta", func(m *models.Metrics, _ *Params) { m.Beta = math.NaN() }, models.KindMissingData},
		{"empty horizon", func(_ *models.Metrics, p *Params) { p.Period = 0 }, models.KindDegenerateModel},
		{"discount equals terminal", func(m *models.Metrics, p *Params) { p.Terminal = DiscountRate(p.RiskFree, m.Beta, p.ERP) }, models.KindDegenerateModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, p := flatMetrics(), flatParams()
			p.Terminal = 0.02
			tt.mutate(&m, &p)
			_, err := Value(m, p)
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.ErrorKind(err))
		})
	}
}
