package utils

import (
	"math"
	"testing"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "$0.00"},
		{100, "$100.00"},
		{1000, "$1,000.00"},
		{12345, "$12,345.00"},
		{123456, "$123,456.00"},
		{1234567, "$1,234,567.00"},
		{2847.5, "$2,847.50"},
		{-1234.56, "-$1,234.56"},
		{math.NaN(), "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatUSD(tt.input)
			if result != tt.expected {
				t.Errorf("FormatUSD(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{500, "500"},
		{1500, "1.5K"},
		{1500000, "1.5M"},
		{245122000000, "245.12B"},
		{3e12, "3T"},
		{-2e9, "-2B"},
		{math.NaN(), "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatCompact(tt.input)
			if result != tt.expected {
				t.Errorf("FormatCompact(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(0.1234); got != "12.34%" {
		t.Errorf("FormatRate(0.1234) = %s, want 12.34%%", got)
	}
	if got := FormatRate(math.NaN()); got != NotAvailable {
		t.Errorf("FormatRate(NaN) = %s, want %s", got, NotAvailable)
	}
}

func TestFormatPct(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{2.45, "+2.45%"},
		{-1.23, "-1.23%"},
		{0, "+0.00%"},
	}
	for _, tt := range tests {
		if got := FormatPct(tt.input); got != tt.expected {
			t.Errorf("FormatPct(%f) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestFormatBillionsAndNumber(t *testing.T) {
	if got := FormatBillions(245.1224); got != "245.12B" {
		t.Errorf("FormatBillions = %s", got)
	}
	if got := FormatNumber(0.91234, 3); got != "0.912" {
		t.Errorf("FormatNumber = %s", got)
	}
	if got := FormatNumber(math.NaN(), 2); got != NotAvailable {
		t.Errorf("FormatNumber(NaN) = %s", got)
	}
}
