package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const DefaultAlpha = 1.0

// LagRidgeOptions represents input options to fit a lag-structured ridge
// regression.
type LagRidgeOptions struct {
	// RegType selects the penalty structure, diagonal ridge or banded
	// Laplacian over the lag axis.
	RegType RegType

	// Alpha is the regularization strength. Must be non-negative. 0.0 solves
	// unregularized least squares and may surface a singular covariance.
	Alpha float64

	// NumLags is the lag block size of the embedded design matrix columns.
	NumLags int

	// FitIntercept removes the sample mean before solving and recovers the
	// intercept from the centering offsets.
	FitIntercept bool
}

// Validate runs basic validation on lag ridge options
func (l *LagRidgeOptions) Validate() (*LagRidgeOptions, error) {
	if l == nil {
		l = NewDefaultLagRidgeOptions()
	}
	if l.Alpha < 0 {
		return nil, ErrNegativeAlpha
	}
	if l.RegType == "" {
		l.RegType = RegTypeRidge
	}
	if err := l.RegType.Validate(); err != nil {
		return nil, fmt.Errorf("got %q, %w", l.RegType, err)
	}
	if l.NumLags <= 0 {
		l.NumLags = 1
	}
	return l, nil
}

// NewDefaultLagRidgeOptions returns a default set of lag ridge options
func NewDefaultLagRidgeOptions() *LagRidgeOptions {
	return &LagRidgeOptions{
		RegType:      RegTypeRidge,
		Alpha:        DefaultAlpha,
		NumLags:      1,
		FitIntercept: false,
	}
}

// LagRidge solves the regularized normal equations of a delay-embedded design
// matrix for one or more targets at once.
type LagRidge struct {
	opt *LagRidgeOptions

	cov       *Covariance
	coef      *mat.Dense
	intercept []float64
}

// NewLagRidge initializes a lag ridge model ready for fitting
func NewLagRidge(opt *LagRidgeOptions) (*LagRidge, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &LagRidge{
		opt: opt,
	}, nil
}

// Fit the model according to the given training data. The covariance
// statistics are retained so subsequent SolveAlpha calls reuse them.
func (l *LagRidge) Fit(x, y mat.Matrix) error {
	if l.opt == nil {
		return ErrNoOptions
	}

	cov, err := NewCovariance(x, y, l.opt.FitIntercept)
	if err != nil {
		return err
	}
	l.cov = cov

	return l.SolveAlpha(l.opt.Alpha)
}

// SolveAlpha re-solves the retained covariance statistics at a new
// regularization strength without revisiting the training data.
func (l *LagRidge) SolveAlpha(alpha float64) error {
	if l.cov == nil {
		return ErrNoTrainingMatrix
	}

	coef, intercept, err := l.cov.Solve(l.opt.RegType, alpha, l.opt.NumLags)
	if err != nil {
		return err
	}
	l.coef = coef
	l.intercept = intercept
	return nil
}

// Predict using the lag ridge model, returning one column per target.
func (l *LagRidge) Predict(x mat.Matrix) (*mat.Dense, error) {
	if l.opt == nil {
		return nil, ErrNoOptions
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	if l.coef == nil {
		return nil, ErrNoCoefficients
	}

	m, n := x.Dims()
	p, nTargets := l.coef.Dims()
	if n != p {
		return nil, fmt.Errorf("got %d features in design matrix, but expected %d, %w", n, p, ErrFeatureLenMismatch)
	}

	var res mat.Dense
	res.Mul(x, l.coef)
	if l.opt.FitIntercept {
		for i := 0; i < m; i++ {
			for t := 0; t < nTargets; t++ {
				res.Set(i, t, res.At(i, t)+l.intercept[t])
			}
		}
	}
	return &res, nil
}

// Score computes the coefficient of determination of the prediction over all
// targets flattened together.
func (l *LagRidge) Score(x, y mat.Matrix) (float64, error) {
	if x == nil {
		return 0.0, ErrNoDesignMatrix
	}
	if y == nil {
		return 0.0, ErrNoTargetMatrix
	}

	m, _ := x.Dims()
	ym, nTargets := y.Dims()
	if m != ym {
		return 0.0, fmt.Errorf("design matrix has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}

	res, err := l.Predict(x)
	if err != nil {
		return 0.0, err
	}

	predicted := make([]float64, 0, m*nTargets)
	actual := make([]float64, 0, m*nTargets)
	for i := 0; i < m; i++ {
		for t := 0; t < nTargets; t++ {
			predicted = append(predicted, res.At(i, t))
			actual = append(actual, y.At(i, t))
		}
	}
	return stat.RSquaredFrom(predicted, actual, nil), nil
}

// Intercept returns the computed per-target intercept if FitIntercept is set.
// Defaults to zeros if not set.
func (l *LagRidge) Intercept() []float64 {
	if l == nil || l.intercept == nil {
		return nil
	}
	out := make([]float64, len(l.intercept))
	copy(out, l.intercept)
	return out
}

// Coef returns the trained coefficient matrix of shape
// (features*lags, targets).
func (l *LagRidge) Coef() *mat.Dense {
	if l == nil || l.coef == nil {
		return nil
	}
	return mat.DenseCopyOf(l.coef)
}

// Covariance returns the retained training covariance statistics.
func (l *LagRidge) Covariance() *Covariance {
	if l == nil {
		return nil
	}
	return l.cov
}
