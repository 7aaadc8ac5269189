package models

import (
	"errors"
)

var (
	ErrNoOptions          = errors.New("no initialized model options")
	ErrNoTrainingMatrix   = errors.New("no training matrix")
	ErrNoTargetMatrix     = errors.New("no target matrix")
	ErrNoDesignMatrix     = errors.New("no design matrix for inference")
	ErrTargetLenMismatch  = errors.New("target length does not match target rows")
	ErrFeatureLenMismatch = errors.New("number of features does not match number of model coefficients")
	ErrNegativeAlpha      = errors.New("negative regularization strength")
	ErrUnknownRegType     = errors.New("unknown regularization type")
	ErrLagLayoutMismatch  = errors.New("embedded columns are not divisible by the number of lags")
	ErrSingularCovariance = errors.New("singular or ill-conditioned covariance")
	ErrNoCoefficients     = errors.New("no model coefficients from fit")
)
