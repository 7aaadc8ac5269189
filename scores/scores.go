// Package scores computes agreement metrics between predicted and actual
// signals and aggregates them across trials.
package scores

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrResLenMismatch    = errors.New("predicted and actual have different lengths")
	ErrWeightLenMismatch = errors.New("weights have a different length than scores")
	ErrUnknownScoring    = errors.New("unknown scoring type")
	ErrNoScores          = errors.New("no scores to aggregate")
)

// Type selects the agreement metric used to evaluate predictions.
type Type string

const (
	// TypeCorrelation scores with the Pearson correlation coefficient.
	TypeCorrelation Type = "corrcoef"
	// TypeRSquared scores with the coefficient of determination.
	TypeRSquared Type = "r2"
)

// Scorer computes a single agreement score between a predicted and an actual
// signal of equal length.
type Scorer func(predicted, actual []float64) (float64, error)

// New returns the scorer for the given type.
func New(t Type) (Scorer, error) {
	switch t {
	case TypeCorrelation:
		return Correlation, nil
	case TypeRSquared:
		return RSquared, nil
	default:
		return nil, fmt.Errorf("got %q, %w", t, ErrUnknownScoring)
	}
}

// Correlation computes the Pearson correlation coefficient between the
// predicted and actual values where 1.0 means a perfect linear match.
func Correlation(predicted, actual []float64) (float64, error) {
	if len(predicted) != len(actual) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(actual), len(predicted), ErrResLenMismatch)
	}
	return stat.Correlation(predicted, actual, nil), nil
}

// RSquared computes the coefficient of determination between the predicted
// and actual values where 1.0 means a perfect fit.
func RSquared(predicted, actual []float64) (float64, error) {
	if len(predicted) != len(actual) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(actual), len(predicted), ErrResLenMismatch)
	}
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) {
		return 1.0, nil
	}
	return r2, nil
}

// WeightedMean aggregates per-trial scores with the given weights. A nil
// weight slice averages uniformly.
func WeightedMean(vals, weights []float64) (float64, error) {
	if len(vals) == 0 {
		return 0, ErrNoScores
	}
	if weights != nil && len(weights) != len(vals) {
		return 0, fmt.Errorf("got %d weights for %d scores, %w", len(weights), len(vals), ErrWeightLenMismatch)
	}
	return stat.Mean(vals, weights), nil
}

// DurationWeights converts per-trial sample counts into normalized averaging
// weights proportional to trial duration.
func DurationWeights(lengths []int) []float64 {
	var total float64
	for _, n := range lengths {
		total += float64(n)
	}
	weights := make([]float64, len(lengths))
	for i, n := range lengths {
		weights[i] = float64(n) / total
	}
	return weights
}
