// Package provider defines the statement provider contract the valuation
// runner depends on, the line items it requests, and a registry that routes
// requests to named providers with ordered fallback.
package provider

import (
	"context"
	"fmt"

	"github.com/seenimoa/fairvalue/pkg/models"
)

// StatementKind identifies one of the three financial statements.
type StatementKind string

const (
	Income   StatementKind = "income"
	CashFlow StatementKind = "cashflow"
	Balance  StatementKind = "balance"
)

// Valid reports whether k names a known statement.
func (k StatementKind) Valid() bool {
	switch k {
	case Income, CashFlow, Balance:
		return true
	}
	return false
}

// LineItem is one row of a statement, named as the provider reports it.
type LineItem struct {
	Kind StatementKind
	Name string
}

func (li LineItem) String() string { return string(li.Kind) + "/" + li.Name }

// Line items required to derive a metrics record.
var (
	TotalRevenue                = LineItem{Income, "Total Revenue"}
	EBITDA                      = LineItem{Income, "EBITDA"}
	TaxProvision                = LineItem{Income, "Tax Provision"}
	PretaxIncome                = LineItem{Income, "Pretax Income"}
	DepreciationAndAmortization = LineItem{CashFlow, "Depreciation And Amortization"}
	CapitalExpenditure          = LineItem{CashFlow, "Capital Expenditure"}
	ChangeInWorkingCapital      = LineItem{CashFlow, "Change In Working Capital"}
	NetDebt                     = LineItem{Balance, "Net Debt"}
	ShareIssued                 = LineItem{Balance, "Share Issued"}
)

// RequiredItems returns every line item the metric derivation reads.
func RequiredItems() []LineItem {
	return []LineItem{
		TotalRevenue, EBITDA, TaxProvision, PretaxIncome,
		DepreciationAndAmortization, CapitalExpenditure, ChangeInWorkingCapital,
		NetDebt, ShareIssued,
	}
}

// ProviderInfo holds metadata about a registered provider.
type ProviderInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website,omitempty"`
}

// Provider supplies raw statement rows and beta for a ticker.
//
// Series returns at most maxPeriods observations, most recent first, with
// NaN for a period the provider has no value for. An item the provider does
// not report at all is returned as an all-NaN series, not an error; errors
// are reserved for transport and payload failures and are *models.ProviderError.
// Beta returns NaN when the provider has no beta.
type Provider interface {
	Info() ProviderInfo
	Series(ctx context.Context, ticker string, item LineItem, maxPeriods int) (models.RawSeries, error)
	Beta(ctx context.Context, ticker string) (float64, error)
}

// ErrProviderNotFound is returned when a requested provider is not registered.
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return fmt.Sprintf("provider %q not found", e.Name)
}

// Fail wraps err as a *models.ProviderError attributed to the named provider.
func Fail(name, ticker, op string, err error) error {
	return &models.ProviderError{Provider: name, Ticker: ticker, Op: op, Err: err}
}

// MissingSeries returns an all-NaN series of length n.
func MissingSeries(n int) models.RawSeries {
	s := make(models.RawSeries, n)
	for i := range s {
		s[i] = models.Missing()
	}
	return s
}
