// Package valuation projects free cash flow to the firm over a finite
// horizon and discounts it, plus a Gordon-growth terminal value, to a fair
// value per share.
package valuation

import (
	"fmt"
	"math"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// Default model parameters.
const (
	DefaultPeriod      = 10
	DefaultRiskFree    = 0.04
	DefaultERP         = 0.0417
	DefaultGrowthDecay = 0.01
	DefaultTerminal    = 0.025
)

// Params are the caller-supplied model inputs.
type Params struct {
	Period            int             `json:"period"        mapstructure:"period"`
	RiskFree          float64         `json:"risk_free"     mapstructure:"risk_free"`
	ERP               float64         `json:"erp"           mapstructure:"erp"`
	GrowthDecay       float64         `json:"growth_decay"  mapstructure:"growth_decay"`
	Terminal          float64         `json:"terminal"      mapstructure:"terminal"`
	RevGrowthOverride models.Override `json:"rev_growth"    mapstructure:"rev_growth"`
	CapexRateOverride models.Override `json:"capex_rate"    mapstructure:"capex_rate"`
}

// DefaultParams returns the documented defaults with no overrides.
func DefaultParams() Params {
	return Params{
		Period:      DefaultPeriod,
		RiskFree:    DefaultRiskFree,
		ERP:         DefaultERP,
		GrowthDecay: DefaultGrowthDecay,
		Terminal:    DefaultTerminal,
	}
}

// Validate rejects parameter sets the model cannot be run with.
func (p Params) Validate() error {
	if p.Period < 1 {
		return fmt.Errorf("period must be at least 1, got %d", p.Period)
	}
	if p.GrowthDecay < 0 {
		return fmt.Errorf("growth decay cannot be negative, got %f", p.GrowthDecay)
	}
	if p.ERP < 0 {
		return fmt.Errorf("equity risk premium cannot be negative, got %f", p.ERP)
	}
	return nil
}

// Projection is one forecast year.
type Projection struct {
	Year         int     `json:"year"`
	GrowthRate   float64 `json:"growth_rate"`
	Revenue      float64 `json:"revenue"`
	EBITDA       float64 `json:"ebitda"`
	DA           float64 `json:"d_and_a"`
	EBIT         float64 `json:"ebit"`
	Capex        float64 `json:"capex"`
	DeltaWorkCap float64 `json:"delta_work_cap"`
	FCFF         float64 `json:"fcff"`
	Discount     float64 `json:"discount_factor"`
	PV           float64 `json:"pv"`
}

// Terminal is the value of all cash flows beyond the explicit horizon.
type Terminal struct {
	NextFCFF float64 `json:"next_fcff"`
	Value    float64 `json:"value"`
	PV       float64 `json:"pv"`
	Exponent int     `json:"exponent"`
}

// Result is the full breakdown of one valuation.
type Result struct {
	Ticker          string       `json:"ticker"`
	DiscountRate    float64      `json:"discount_rate"`
	GrowthRate      float64      `json:"growth_rate"`
	CapexRate       float64      `json:"capex_rate"`
	Years           []Projection `json:"years"`
	PeriodPV        float64      `json:"period_pv"`
	Terminal        Terminal     `json:"terminal"`
	EnterpriseValue float64      `json:"enterprise_value"`
	NetDebtApplied  bool         `json:"net_debt_applied"`
	EquityValue     float64      `json:"equity_value"`
	FairValue       float64      `json:"fair_value"`
}

// DiscountRate is the CAPM cost of equity used for every horizon year.
func DiscountRate(riskFree, beta, erp float64) float64 {
	return riskFree + beta*erp
}

// GrowthSchedule returns the revenue growth rate used in each of period
// years. The rate steps down by decay only while the stepped value stays
// above terminal, so the schedule is non-increasing and stops within one
// step of terminal.
func GrowthSchedule(initial, decay, terminal float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	schedule := make([]float64, period)
	g := initial
	for i := range schedule {
		if g-decay > terminal {
			g -= decay
		}
		schedule[i] = g
	}
	return schedule
}

// rates are the per-revenue ratios held flat across the horizon.
type rates struct {
	ebitda, da, capex, deltaWC, tax float64
}

// project grows revenue through schedule and discounts each year's FCFF at
// discountRate. It returns the per-year rows and their summed present value.
func project(revenue float64, schedule []float64, r rates, discountRate float64) ([]Projection, float64) {
	years := make([]Projection, len(schedule))
	var total float64
	curr := revenue
	for i, g := range schedule {
		curr *= 1 + g
		p := Projection{
			Year:         i + 1,
			GrowthRate:   g,
			Revenue:      curr,
			EBITDA:       curr * r.ebitda,
			DA:           curr * r.da,
			Capex:        curr * r.capex,
			DeltaWorkCap: curr * r.deltaWC,
		}
		p.EBIT = p.EBITDA - p.DA
		p.FCFF = p.EBIT*(1-r.tax) + p.DA - p.Capex - p.DeltaWorkCap
		p.Discount = math.Pow(1+discountRate, float64(p.Year))
		p.PV = p.FCFF / p.Discount
		total += p.PV
		years[i] = p
	}
	return years, total
}

// TerminalValue grows the final year's FCFF by terminal growth, capitalises
// it and discounts it back period years.
func TerminalValue(lastFCFF, discountRate, terminal float64, period int) (Terminal, error) {
	if discountRate <= terminal {
		return Terminal{}, &models.DegenerateModelError{
			Reason: fmt.Sprintf("discount rate %.4f must exceed terminal growth %.4f", discountRate, terminal),
		}
	}
	next := lastFCFF * (1 + terminal)
	tv := next / (discountRate - terminal)
	return Terminal{
		NextFCFF: next,
		Value:    tv,
		PV:       tv / math.Pow(1+discountRate, float64(period)),
		Exponent: period,
	}, nil
}

// Value runs the full DCF/FCFF model for m under p.
func Value(m models.Metrics, p Params) (*Result, error) {
	if p.Period < 1 {
		return nil, &models.DegenerateModelError{Reason: fmt.Sprintf("horizon must be at least one period, got %d", p.Period)}
	}
	if models.IsMissing(m.Beta) {
		return nil, &models.MissingDataError{Field: "beta"}
	}
	if models.IsMissing(m.OutstandingShares) || m.OutstandingShares == 0 {
		return nil, &models.DegenerateModelError{Reason: "outstanding shares resolve to zero"}
	}

	res := &Result{
		Ticker:       m.Ticker,
		DiscountRate: DiscountRate(p.RiskFree, m.Beta, p.ERP),
		GrowthRate:   p.RevGrowthOverride.Apply(m.RevGrowthRate),
		CapexRate:    p.CapexRateOverride.Apply(m.CapexRate),
	}

	schedule := GrowthSchedule(res.GrowthRate, p.GrowthDecay, p.Terminal, p.Period)
	res.Years, res.PeriodPV = project(m.Revenue, schedule, rates{
		ebitda:  m.EBITDAMarginRate,
		da:      m.DARate,
		capex:   res.CapexRate,
		deltaWC: m.DeltaWorkCapRate,
		tax:     m.TaxRate,
	}, res.DiscountRate)

	term, err := TerminalValue(res.Years[len(res.Years)-1].FCFF, res.DiscountRate, p.Terminal, p.Period)
	if err != nil {
		return nil, err
	}
	res.Terminal = term
	res.EnterpriseValue = res.PeriodPV + term.PV

	res.EquityValue = res.EnterpriseValue
	if m.HasNetDebt() {
		res.EquityValue -= m.NetDebt
		res.NetDebtApplied = true
	}
	res.FairValue = res.EquityValue / m.OutstandingShares

	return res, nil
}
