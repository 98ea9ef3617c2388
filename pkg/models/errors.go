package models

import (
	"errors"
	"fmt"
)

// Error kinds recorded against failed batch entries.
const (
	KindMissingData       = "missing_data"
	KindInsufficientPairs = "insufficient_pairs"
	KindDegenerateModel   = "degenerate_model"
	KindProvider          = "provider"
	KindUnknown           = "unknown"
)

// MissingDataError is returned when a required line item has no value
// anywhere in the lookback window.
type MissingDataError struct {
	Field string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data: no value for %q in lookback window", e.Field)
}

// InsufficientPairsError is returned when a rate has no valid period pairs
// to average over.
type InsufficientPairsError struct {
	Field string
}

func (e *InsufficientPairsError) Error() string {
	return fmt.Sprintf("insufficient pairs: no valid period pairs for %q", e.Field)
}

// DegenerateModelError is returned when the model inputs make the valuation
// undefined (terminal value blow-up, zero shares, empty horizon).
type DegenerateModelError struct {
	Reason string
}

func (e *DegenerateModelError) Error() string {
	return "degenerate model: " + e.Reason
}

// ProviderError wraps a failure of the external statement provider
// (unreachable, bad status, malformed payload).
type ProviderError struct {
	Provider string
	Ticker   string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s %s: %v", e.Provider, e.Op, e.Ticker, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	var (
		missing    *MissingDataError
		pairs      *InsufficientPairsError
		degenerate *DegenerateModelError
		prov       *ProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing):
		return KindMissingData
	case errors.As(err, &pairs):
		return KindInsufficientPairs
	case errors.As(err, &degenerate):
		return KindDegenerateModel
	case errors.As(err, &prov):
		return KindProvider
	default:
		return KindUnknown
	}
}
