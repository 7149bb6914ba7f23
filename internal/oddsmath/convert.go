// Package oddsmath converts between odds formats and completes partially
// populated outcome records.
package oddsmath

import (
	"errors"
	"math"
)

var (
	ErrZeroAmerican     = errors.New("oddsmath: american odds cannot be 0")
	ErrDecimalRange     = errors.New("oddsmath: decimal odds must be >= 1.0")
	ErrProbabilityRange = errors.New("oddsmath: probability must be in (0, 1)")
)

// AmericanToDecimal converts American odds to decimal odds.
// +150 -> 2.50, -150 -> 1.667.
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, ErrZeroAmerican
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/float64(-american) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to American odds, rounded to the
// nearest integer.
func DecimalToAmerican(decimal float64) (int, error) {
	if decimal < 1.0 || math.IsNaN(decimal) {
		return 0, ErrDecimalRange
	}
	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}
	if decimal == 1.0 {
		return 0, ErrDecimalRange
	}
	return int(math.Round(-100.0 / (decimal - 1.0))), nil
}

// DecimalToImpliedProbability returns 1/decimal.
func DecimalToImpliedProbability(decimal float64) (float64, error) {
	if decimal <= 0 {
		return 0, ErrDecimalRange
	}
	return 1.0 / decimal, nil
}

// ProbabilityToAmerican converts a fair probability to American odds.
func ProbabilityToAmerican(p float64) (int, error) {
	if p <= 0 || p >= 1 {
		return 0, ErrProbabilityRange
	}
	return DecimalToAmerican(1.0 / p)
}

// CalculateEdge returns fair/implied - 1. Positive means +EV.
func CalculateEdge(fair, implied float64) (float64, error) {
	if fair <= 0 || fair >= 1 || implied <= 0 || implied >= 1 {
		return 0, ErrProbabilityRange
	}
	return fair/implied - 1.0, nil
}
