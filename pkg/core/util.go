package core

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat formats a float64 with the given precision
func FormatFloat(value float64, precision int) string {
	return strconv.FormatFloat(value, 'f', precision, 64)
}

// FormatWithOptimalPrecision formats a float using its inherent precision
// It determines the number of decimal places automatically
func FormatWithOptimalPrecision(value float64) string {
	precision := int(NumDecPlaces(value))
	return FormatFloat(value, precision)
}

// TrimTrailingZeros removes unnecessary zeros after the decimal point
func TrimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}

	s = strings.TrimRight(s, "0")
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}

	return s
}

// Round8 rounds a value to the 8-decimal precision used for quantities,
// prices and monetary amounts
func Round8(value float64) float64 {
	return math.Round(value*1e8) / 1e8
}

// FloorToLot truncates a quantity down to the lot precision implied by the
// step. Spot lot steps are powers of ten; float noise right below a lot
// boundary is absorbed by the decimal formatting.
func FloorToLot(quantity, step float64) float64 {
	if step <= 0 || quantity <= 0 {
		return quantity
	}

	precision := int(NumDecPlaces(step))
	s := strconv.FormatFloat(quantity, 'f', precision+1, 64)
	v, _ := strconv.ParseFloat(s[:len(s)-1], 64)

	return v
}
