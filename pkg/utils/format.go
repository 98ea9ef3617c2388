// Package utils provides common formatting and ticker helpers for fairvalue.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// NotAvailable is printed in place of a missing (NaN) value.
const NotAvailable = "n/a"

// FormatUSD formats an amount with thousands separators and two decimals
// (e.g. 1234567.891 → "$1,234,567.89").
func FormatUSD(amount float64) string {
	if math.IsNaN(amount) {
		return NotAvailable
	}
	if math.IsInf(amount, 0) {
		return fmt.Sprintf("%v", amount)
	}
	negative := amount < 0
	amount = math.Abs(amount)

	s := fmt.Sprintf("%.2f", amount)
	intPart, decPart := s[:len(s)-3], s[len(s)-3:]
	formatted := groupThousands(intPart) + decPart

	if negative {
		return "-$" + formatted
	}
	return "$" + formatted
}

// FormatCompact formats a raw amount in short scale notation.
// e.g., 245122000000 → "245.12B", 1500000 → "1.5M"
func FormatCompact(amount float64) string {
	if math.IsNaN(amount) {
		return NotAvailable
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	switch {
	case amount >= 1e12:
		return sign + formatWithDecimals(amount/1e12) + "T"
	case amount >= 1e9:
		return sign + formatWithDecimals(amount/1e9) + "B"
	case amount >= 1e6:
		return sign + formatWithDecimals(amount/1e6) + "M"
	case amount >= 1e3:
		return sign + formatWithDecimals(amount/1e3) + "K"
	default:
		return sign + formatWithDecimals(amount)
	}
}

// FormatBillions formats a value already expressed in billions.
// e.g., 245.1224 → "245.12B"
func FormatBillions(b float64) string {
	if math.IsNaN(b) {
		return NotAvailable
	}
	return fmt.Sprintf("%.2fB", b)
}

// FormatRate formats a fractional rate as a percentage.
// e.g., 0.1234 → "12.34%"
func FormatRate(rate float64) string {
	if math.IsNaN(rate) {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if math.IsNaN(pct) {
		return NotAvailable
	}
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatNumber formats a plain number with the given decimals, or n/a.
func FormatNumber(v float64, decimals int) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatWithDecimals formats a number with up to 2 decimal places,
// removing trailing zeros.
func formatWithDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
