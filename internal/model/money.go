package model

import (
	"fmt"
	"math"
)

// ToCents converts a major-unit float (as delivered by the storefront API) to cents.
// math.Round keeps 19.99 from becoming 1998 after float multiplication.
func ToCents(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f * 100))
}

// FormatCents renders cents with two decimal places: 123456 → "1234.56", -5 → "-0.05".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// FormatPrice renders a major-unit amount with two decimals. Zero renders as "0.00".
func FormatPrice(f float64) string {
	return FormatCents(ToCents(f))
}
