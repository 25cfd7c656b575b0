package util

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	testCases := []struct {
		v        float64
		min      float64
		max      float64
		expected float64
	}{
		{v: 0.5, min: 0.1, max: 0.9, expected: 0.5},
		{v: 10.5, min: 0.1, max: 0.9, expected: 0.9},
		{v: -3, min: 0.1, max: 0.9, expected: 0.1},
		{v: 4, min: 0, max: 0, expected: 0},
		{v: 0.5, min: 0.9, max: 0.1, expected: 0.5},
		{v: 2, min: 0.9, max: 0.1, expected: 0.9},
	}

	for i, tc := range testCases {
		actual := Clamp(tc.v, tc.min, tc.max)
		if actual != tc.expected {
			t.Errorf("Test case %d Clamp(%f, %f, %f) = %f; expected %f", i, tc.v, tc.min, tc.max, actual, tc.expected)
		}
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1.5) {
		t.Errorf("1.5 should be finite")
	}
	if IsFinite(math.NaN()) {
		t.Errorf("NaN should not be finite")
	}
	if IsFinite(math.Inf(1)) || IsFinite(math.Inf(-1)) {
		t.Errorf("Inf should not be finite")
	}
}

func TestNearlyEqual(t *testing.T) {
	if !NearlyEqual(0.1+0.2, 0.3) {
		t.Errorf("0.1+0.2 should be nearly equal to 0.3")
	}
	if NearlyEqual(0.3, 0.31) {
		t.Errorf("0.3 should not be nearly equal to 0.31")
	}
	if !Greater(0.31, 0.3) || Greater(0.3+1e-9, 0.3) {
		t.Errorf("Greater is not tolerant of rounding noise")
	}
	if !GreaterOrNearlyEqual(0.3, 0.1+0.2) {
		t.Errorf("GreaterOrNearlyEqual should accept rounding noise")
	}
}
