package yfinance

import "encoding/json"

// --- Yahoo Finance API response types ---

// yfTimeseriesResponse wraps the fundamentals-timeseries API response.
// Each result carries one line item under a key equal to its type name.
type yfTimeseriesResponse struct {
	Timeseries struct {
		Result []json.RawMessage `json:"result"`
		Error  *yfError          `json:"error"`
	} `json:"timeseries"`
}

type yfTimeseriesMeta struct {
	Meta struct {
		Symbol []string `json:"symbol"`
		Type   []string `json:"type"`
	} `json:"meta"`
}

// yfTimeseriesPoint is one reported period. Yahoo sends null for a period
// it has no value for, which decodes to a nil pointer.
type yfTimeseriesPoint struct {
	AsOfDate      string   `json:"asOfDate"`
	PeriodType    string   `json:"periodType"`
	ReportedValue yfFinVal `json:"reportedValue"`
}

// yfQuoteSummaryResponse wraps the v10 quoteSummary API response.
type yfQuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []yfQuoteSummaryResult `json:"result"`
		Error  *yfError               `json:"error"`
	} `json:"quoteSummary"`
}

type yfQuoteSummaryResult struct {
	DefaultKeyStatistics *struct {
		Beta yfFinVal `json:"beta"`
	} `json:"defaultKeyStatistics"`
	SummaryDetail *struct {
		Beta yfFinVal `json:"beta"`
	} `json:"summaryDetail"`
}

// yfFinVal is Yahoo's {raw, fmt} number pair. Raw is nil when Yahoo sends
// an empty object.
type yfFinVal struct {
	Raw *float64 `json:"raw"`
	Fmt string   `json:"fmt"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *yfError) Error() string {
	return e.Code + ": " + e.Description
}
