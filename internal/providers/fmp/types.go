package fmp

import "encoding/json"

// --- FMP API response types ---

// fmpRecord is one annual statement from any of the statement endpoints.
// Fields are kept raw so a line item can be read by its FMP name.
type fmpRecord map[string]json.RawMessage

// fmpProfile represents the part of the company profile used here.
type fmpProfile struct {
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"companyName"`
	Currency    string   `json:"currency"`
	Beta        *float64 `json:"beta"`
}

// fmpError is the object FMP returns in place of an array on failure.
type fmpError struct {
	Message string `json:"Error Message"`
}

func (e *fmpError) Error() string {
	return "fmp: " + e.Message
}
