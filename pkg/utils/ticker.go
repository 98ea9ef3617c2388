package utils

import (
	"strings"
)

// Common ticker aliases.
var tickerAliases = map[string]string{
	"GOOGLE":     "GOOGL",
	"ALPHABET":   "GOOGL",
	"MICROSOFT":  "MSFT",
	"AMAZON":     "AMZN",
	"NVIDIA":     "NVDA",
	"SERVICENOW": "NOW",
	"INTUIT":     "INTU",
	"MCDONALDS":  "MCD",
	"BRK-B":      "BRK.B",
	"BRK/B":      "BRK.B",
}

// NormalizeTicker normalizes a user-input ticker to its canonical form.
// It handles aliases, uppercasing, whitespace and a leading $.
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")

	if canonical, ok := tickerAliases[ticker]; ok {
		return canonical
	}
	return ticker
}

// ToYahooTicker converts a canonical ticker to Yahoo Finance format.
// Share class suffixes use a dash on Yahoo (BRK.B → BRK-B); exchange
// suffixes (SAP.DE, RELIANCE.NS) and index symbols (^GSPC) are kept.
func ToYahooTicker(ticker string) string {
	ticker = NormalizeTicker(ticker)
	if strings.HasPrefix(ticker, "^") {
		return ticker
	}

	dot := strings.LastIndex(ticker, ".")
	if dot > 0 && len(ticker)-dot-1 == 1 {
		return ticker[:dot] + "-" + ticker[dot+1:]
	}
	return ticker
}

// FromYahooTicker converts a Yahoo Finance symbol back to canonical form.
func FromYahooTicker(yfTicker string) string {
	yfTicker = strings.ToUpper(yfTicker)
	dash := strings.LastIndex(yfTicker, "-")
	if dash > 0 && len(yfTicker)-dash-1 == 1 {
		return yfTicker[:dash] + "." + yfTicker[dash+1:]
	}
	return yfTicker
}

// IsIndex checks if the ticker is an index rather than a company.
func IsIndex(ticker string) bool {
	return strings.HasPrefix(NormalizeTicker(ticker), "^")
}

// FileName returns a filesystem-safe name for the ticker's data file.
func FileName(ticker string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "^", "_", ":", "_")
	return r.Replace(NormalizeTicker(ticker)) + ".json"
}
