package presenter

import (
	"math"
	"strings"
)

const (
	barFilled = "█"
	barEmpty  = "░"
)

// ConfidencePercent clamps v into [0, 1] and returns it as a whole percentage.
// NaN is treated as 0.
func ConfidencePercent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	clamped := math.Max(0, math.Min(v, 1))
	return int(math.Round(clamped * 100))
}

// ConfidenceBar renders a bar of width cells filled in proportion to the
// clamped confidence.
func ConfidenceBar(v float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(float64(ConfidencePercent(v)) * float64(width) / 100))
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}
