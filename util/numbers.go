package util

import (
	"math"
)

const epsilon = 0.000001

func NearlyEqual(a float64, b float64) bool {
	if a == b {
		return true
	}

	diff := math.Abs(a - b)
	if diff < epsilon {
		return true
	}

	return false
}

func Greater(a float64, b float64) bool {
	return a > b && !NearlyEqual(a, b)
}

func GreaterOrNearlyEqual(a float64, b float64) bool {
	if a > b || a == b {
		return true
	}

	return NearlyEqual(a, b)
}

// Clamp bounds v to [min, max]. When min > max the bounds are swapped.
func Clamp(v float64, min float64, max float64) float64 {
	if min > max {
		min, max = max, min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
