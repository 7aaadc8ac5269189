// Package models solves regularized lag regressions on delay-embedded design
// matrices. The covariance sufficient statistics are computed once per
// training split and reused for every candidate regularization strength.
package models

import (
	"gonum.org/v1/gonum/mat"
)

// Model is a multi-target linear regression over an embedded design matrix.
type Model interface {
	Fit(x, y mat.Matrix) error
	Predict(x mat.Matrix) (*mat.Dense, error)
	Score(x, y mat.Matrix) (float64, error)
	Intercept() []float64
	Coef() *mat.Dense
}

// RegType selects the penalty structure added to the feature covariance.
type RegType string

const (
	// RegTypeRidge penalizes the coefficient norm by adding alpha to the
	// covariance diagonal.
	RegTypeRidge RegType = "ridge"

	// RegTypeLaplacian penalizes coefficient roughness across adjacent lags
	// with a banded second-difference operator scaled by alpha.
	RegTypeLaplacian RegType = "laplacian"
)

// Validate checks that the regularization type is a known value.
func (r RegType) Validate() error {
	switch r {
	case RegTypeRidge, RegTypeLaplacian:
		return nil
	default:
		return ErrUnknownRegType
	}
}
