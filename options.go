package trf

import (
	"errors"
	"fmt"
	"math"

	"github.com/aouyang1/go-trf/delay"
	"github.com/aouyang1/go-trf/models"
	"github.com/aouyang1/go-trf/scores"
)

const (
	DefaultTestFraction = 0.25

	// DefaultAlphaMinExp and DefaultAlphaMaxExp bound the default logarithmic
	// grid of candidate regularization strengths, 10^2 through 10^9.
	DefaultAlphaMinExp = 2
	DefaultAlphaMaxExp = 9
	DefaultNumAlphas   = 8
)

var (
	ErrInvalidTestFraction = errors.New("test fraction must be no more than 0.5 with multiple alphas")
	ErrNoAlphaCandidates   = errors.New("no alpha candidates")
)

// Options configures a TRF model. tmin/tmax bound the lag window in seconds
// and sfreq converts them into samples. For a causal encoding model lags
// point backwards in time relative to the input, so tmin=0 and tmax>0 model
// a response driven by preceding stimulus samples, while a decoding model
// typically uses tmin<0 and tmax=0.
type Options struct {
	// TMin is the starting lag of the window, inclusive, in seconds.
	TMin float64 `json:"tmin"`

	// TMax is the ending lag of the window in seconds. Must be greater
	// than TMin.
	TMax float64 `json:"tmax"`

	// SFreq is the sampling frequency in Hz used to convert lag times into
	// samples. Must be positive.
	SFreq float64 `json:"sfreq"`

	// RegType selects ridge or Laplacian regularization.
	RegType models.RegType `json:"reg_type"`

	// Alphas is the candidate regularization grid. A single value skips
	// cross-validation; multiple values are cross-validated per output
	// channel. Defaults to an 8-point logarithmic grid from 1e2 to 1e9.
	Alphas []float64 `json:"alphas"`

	// XValTestFraction is the portion of samples withheld as each
	// cross-validation test block. Must be no more than 0.5 when multiple
	// alphas are given.
	XValTestFraction float64 `json:"xval_test_fraction"`

	// FitIntercept removes the sample mean before fitting and fills
	// embedding boundaries with the trial mean instead of zero.
	FitIntercept bool `json:"fit_intercept"`

	// Scoring selects the metric used for cross-validation and Score.
	Scoring scores.Type `json:"scoring"`

	// Parallelism bounds the number of output channels fit concurrently.
	// Zero or negative fits all channels at once.
	Parallelism int `json:"parallelism"`
}

// NewDefaultOptions returns a default set of TRF options covering a causal
// 0-400ms lag window at 100Hz.
func NewDefaultOptions() *Options {
	return &Options{
		TMin:             0.0,
		TMax:             0.4,
		SFreq:            100.0,
		RegType:          models.RegTypeRidge,
		Alphas:           DefaultAlphas(),
		XValTestFraction: DefaultTestFraction,
		FitIntercept:     false,
		Scoring:          scores.TypeCorrelation,
	}
}

// DefaultAlphas returns the default logarithmic grid of candidate
// regularization strengths.
func DefaultAlphas() []float64 {
	alphas := make([]float64, 0, DefaultNumAlphas)
	step := float64(DefaultAlphaMaxExp-DefaultAlphaMinExp) / float64(DefaultNumAlphas-1)
	for i := 0; i < DefaultNumAlphas; i++ {
		alphas = append(alphas, math.Pow(10, DefaultAlphaMinExp+float64(i)*step))
	}
	return alphas
}

// Validate runs basic validation on TRF options, filling in defaults for
// unset fields. Configuration errors are surfaced here, at construction, and
// never recovered later.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}

	if _, err := delay.Delays(o.TMin, o.TMax, o.SFreq); err != nil {
		return nil, err
	}

	if o.RegType == "" {
		o.RegType = models.RegTypeRidge
	}
	if err := o.RegType.Validate(); err != nil {
		return nil, fmt.Errorf("got %q, %w", o.RegType, err)
	}

	if o.Alphas == nil {
		o.Alphas = DefaultAlphas()
	}
	if len(o.Alphas) == 0 {
		return nil, ErrNoAlphaCandidates
	}
	for _, alpha := range o.Alphas {
		if alpha < 0 {
			return nil, fmt.Errorf("got alpha=%v, %w", alpha, models.ErrNegativeAlpha)
		}
	}

	if o.XValTestFraction == 0 {
		o.XValTestFraction = DefaultTestFraction
	}
	if len(o.Alphas) > 1 && (o.XValTestFraction <= 0 || o.XValTestFraction > 0.5) {
		return nil, fmt.Errorf("got %v, %w", o.XValTestFraction, ErrInvalidTestFraction)
	}

	if o.Scoring == "" {
		o.Scoring = scores.TypeCorrelation
	}
	if _, err := scores.New(o.Scoring); err != nil {
		return nil, err
	}

	return o, nil
}
