package models

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Covariance holds the sufficient statistics of one training split: the
// feature autocovariance, the feature-target cross-covariance and the column
// means used for centering. Computing these once costs a full pass over the
// embedded data; every subsequent Solve is a cheap factorization, so a grid
// of regularization strengths can be evaluated without revisiting the data.
type Covariance struct {
	xtx     *mat.Dense
	xty     *mat.Dense
	xOffset []float64
	yOffset []float64

	rows     int
	cols     int
	nTargets int
}

// NewCovariance computes the sufficient statistics for the embedded design
// matrix x of shape (time, features*lags) and the target y of shape
// (time, targets). When fitIntercept is set, both statistics are centered by
// the column means, which are retained to recover the intercept after
// solving.
func NewCovariance(x, y mat.Matrix, fitIntercept bool) (*Covariance, error) {
	if x == nil {
		return nil, ErrNoTrainingMatrix
	}
	if y == nil {
		return nil, ErrNoTargetMatrix
	}

	m, p := x.Dims()
	ym, nTargets := y.Dims()
	if ym != m {
		return nil, fmt.Errorf("training data has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}

	xtx := mat.NewDense(p, p, nil)
	xtx.Mul(x.T(), x)

	xty := mat.NewDense(p, nTargets, nil)
	xty.Mul(x.T(), y)

	xOffset := make([]float64, p)
	yOffset := make([]float64, nTargets)
	if fitIntercept {
		for j := 0; j < p; j++ {
			xOffset[j] = floats.Sum(mat.Col(nil, j, x)) / float64(m)
		}
		for t := 0; t < nTargets; t++ {
			yOffset[t] = floats.Sum(mat.Col(nil, t, y)) / float64(m)
		}

		n := float64(m)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				xtx.Set(i, j, xtx.At(i, j)-n*xOffset[i]*xOffset[j])
			}
			for t := 0; t < nTargets; t++ {
				xty.Set(i, t, xty.At(i, t)-n*xOffset[i]*yOffset[t])
			}
		}
	}

	return &Covariance{
		xtx:      xtx,
		xty:      xty,
		xOffset:  xOffset,
		yOffset:  yOffset,
		rows:     m,
		cols:     p,
		nTargets: nTargets,
	}, nil
}

// Dims returns the embedded column count and the target count.
func (c *Covariance) Dims() (cols, nTargets int) {
	return c.cols, c.nTargets
}

// Offsets returns the column means of the design matrix and target used for
// centering. Both are zero slices when the covariance was built without
// intercept fitting.
func (c *Covariance) Offsets() (xOffset, yOffset []float64) {
	xOffset = make([]float64, len(c.xOffset))
	copy(xOffset, c.xOffset)
	yOffset = make([]float64, len(c.yOffset))
	copy(yOffset, c.yOffset)
	return xOffset, yOffset
}

// Solve computes the regularized normal-equation solution for a single
// regularization strength, returning the coefficient matrix of shape
// (features*lags, targets) and the per-target intercept. nLags describes the
// lag block size of the embedded column layout and shapes the Laplacian
// penalty. A covariance that cannot be factorized surfaces
// ErrSingularCovariance.
func (c *Covariance) Solve(regType RegType, alpha float64, nLags int) (*mat.Dense, []float64, error) {
	if alpha < 0 {
		return nil, nil, fmt.Errorf("got alpha=%v, %w", alpha, ErrNegativeAlpha)
	}
	if err := regType.Validate(); err != nil {
		return nil, nil, fmt.Errorf("got %q, %w", regType, err)
	}
	if nLags <= 0 || c.cols%nLags != 0 {
		return nil, nil, fmt.Errorf("%d embedded columns with %d lags, %w", c.cols, nLags, ErrLagLayoutMismatch)
	}

	a := mat.NewSymDense(c.cols, nil)
	for i := 0; i < c.cols; i++ {
		for j := i; j < c.cols; j++ {
			a.SetSym(i, j, c.xtx.At(i, j))
		}
	}

	switch regType {
	case RegTypeRidge:
		for i := 0; i < c.cols; i++ {
			a.SetSym(i, i, a.At(i, i)+alpha)
		}
	case RegTypeLaplacian:
		// banded second-difference penalty within each feature's lag block
		nFeats := c.cols / nLags
		for f := 0; f < nFeats; f++ {
			base := f * nLags
			for k := 0; k < nLags; k++ {
				d := 2.0
				if k == 0 || k == nLags-1 {
					d = 1.0
				}
				i := base + k
				a.SetSym(i, i, a.At(i, i)+alpha*d)
				if k < nLags-1 {
					a.SetSym(i, i+1, a.At(i, i+1)-alpha)
				}
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, nil, fmt.Errorf("alpha=%v, %w", alpha, ErrSingularCovariance)
	}

	coef := mat.NewDense(c.cols, c.nTargets, nil)
	if err := chol.SolveTo(coef, c.xty); err != nil {
		return nil, nil, fmt.Errorf("alpha=%v, %v, %w", alpha, err, ErrSingularCovariance)
	}

	intercept := make([]float64, c.nTargets)
	for t := 0; t < c.nTargets; t++ {
		intercept[t] = c.yOffset[t] - floats.Dot(c.xOffset, mat.Col(nil, t, coef))
	}
	return coef, intercept, nil
}

// TrimLags keeps the first keep lag columns of every feature block of a
// coefficient matrix laid out feature-major with nLags lag rows per feature,
// dropping the trailing edge-biased lags.
func TrimLags(coef *mat.Dense, nLags, keep int) (*mat.Dense, error) {
	p, nTargets := coef.Dims()
	if nLags <= 0 || p%nLags != 0 || keep > nLags {
		return nil, fmt.Errorf("%d coefficient rows with %d lags keeping %d, %w", p, nLags, keep, ErrLagLayoutMismatch)
	}

	nFeats := p / nLags
	out := mat.NewDense(nFeats*keep, nTargets, nil)
	for f := 0; f < nFeats; f++ {
		for k := 0; k < keep; k++ {
			for t := 0; t < nTargets; t++ {
				out.Set(f*keep+k, t, coef.At(f*nLags+k, t))
			}
		}
	}
	return out, nil
}

// TrimLagOffsets keeps the first keep lag entries of every feature block of a
// feature-major column offset vector, mirroring TrimLags. Intercepts recovered
// from centering offsets must use the trimmed offsets so they match the
// trimmed prediction path.
func TrimLagOffsets(offsets []float64, nLags, keep int) []float64 {
	nFeats := len(offsets) / nLags
	out := make([]float64, 0, nFeats*keep)
	for f := 0; f < nFeats; f++ {
		out = append(out, offsets[f*nLags:f*nLags+keep]...)
	}
	return out
}
