// Package trf fits temporal receptive field models: linear filters over a
// window of time lags mapping a time-varying predictor, such as a stimulus
// representation, to one or more time-varying response channels. Each output
// channel is fit independently with its own cross-validated regularization
// strength.
package trf

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aouyang1/go-trf/delay"
	mat_ "github.com/aouyang1/go-trf/mat"
	"github.com/aouyang1/go-trf/models"
	"github.com/aouyang1/go-trf/scores"
	"github.com/aouyang1/go-trf/trialset"
	"github.com/aouyang1/go-trf/xval"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUninitializedTRF       = errors.New("uninitialized TRF")
	ErrNotFitted              = errors.New("model has not been fit yet")
	ErrNoTrials               = errors.New("no trials to fit")
	ErrTrialLenMismatch       = errors.New("predictor and target trial counts differ")
	ErrInconsistentTrialShape = errors.New("trial shapes are not consistent")
	ErrTargetRankMismatch     = errors.New("target dimensionality does not match the fit")
	ErrTrialTooShort          = errors.New("trial is shorter than the boundary taper")
	ErrPredictorRank          = errors.New("predictor field must hold rank-2 arrays")
	ErrChannelOutOfBounds     = errors.New("output channel out of bounds")
)

// Filter holds the fitted lag coefficients for a single output channel.
type Filter struct {
	// Alpha is the regularization strength used for the final refit, chosen
	// by cross-validation when multiple candidates were configured.
	Alpha float64

	// Coef has shape (features*lags, outputFeatures) with lag columns laid
	// out feature-major, covering the delay window minus the trimmed final
	// lag.
	Coef *mat.Dense

	// Intercept is the per-output-feature offset, zero unless intercept
	// fitting is enabled.
	Intercept []float64

	// XValScores records the mean held-out score per alpha candidate, nil
	// when cross-validation was skipped.
	XValScores []float64
}

// TRF fits, predicts and scores temporal receptive field models over
// multi-trial data. The zero value is unusable; construct with New. Fit must
// complete before Predict or Score.
type TRF struct {
	opt *Options

	delays  []int
	filters []Filter

	targetRank int
	nFeatures  int
	nChannels  int
	nOutFeats  int
	fitted     bool
}

// New creates a TRF instance with the given options. If none are provided a
// default is used.
func New(opt *Options) (*TRF, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &TRF{opt: opt}, nil
}

// Delays returns the sample lags covered by the fitted filters. The final
// lag of the configured window is trimmed after fitting since boundary
// truncation systematically biases it.
func (t *TRF) Delays() ([]int, error) {
	if t == nil {
		return nil, ErrUninitializedTRF
	}
	if !t.fitted {
		return nil, ErrNotFitted
	}
	out := make([]int, len(t.delays)-1)
	copy(out, t.delays[:len(t.delays)-1])
	return out, nil
}

// Filters returns the per-channel fitted filters in output channel order.
func (t *TRF) Filters() ([]Filter, error) {
	if t == nil {
		return nil, ErrUninitializedTRF
	}
	if !t.fitted {
		return nil, ErrNotFitted
	}
	out := make([]Filter, len(t.filters))
	copy(out, t.filters)
	return out, nil
}

// Coef returns one output channel's filter for a single output feature as a
// (features, lags) matrix. outFeat must be 0 when targets were rank 2.
func (t *TRF) Coef(channel, outFeat int) (*mat.Dense, error) {
	if t == nil {
		return nil, ErrUninitializedTRF
	}
	if !t.fitted {
		return nil, ErrNotFitted
	}
	if channel < 0 || channel >= t.nChannels || outFeat < 0 || outFeat >= t.nOutFeats {
		return nil, fmt.Errorf("channel %d feature %d with %d channels and %d features, %w",
			channel, outFeat, t.nChannels, t.nOutFeats, ErrChannelOutOfBounds)
	}

	nLags := len(t.delays) - 1
	out := mat.NewDense(t.nFeatures, nLags, nil)
	for f := 0; f < t.nFeatures; f++ {
		for k := 0; k < nLags; k++ {
			out.Set(f, k, t.filters[channel].Coef.At(f*nLags+k, outFeat))
		}
	}
	return out, nil
}

// Fit concatenates the given trials and fits one filter per output channel.
// x holds one (time, features) predictor per trial and y one target tensor
// per trial, rank 2 as (time, channels) or rank 3 as
// (time, channels, features). A failed fit leaves the model unfit.
func (t *TRF) Fit(x []*mat.Dense, y []*trialset.Tensor) error {
	if t == nil {
		return ErrUninitializedTRF
	}

	// refitting transitions through the unfit state so a failed fit can never
	// leave stale coefficients behind
	t.fitted = false
	t.filters = nil
	t.delays = nil

	if err := validateTrials(x, y); err != nil {
		return err
	}

	tapered, err := t.taperTargets(y)
	if err != nil {
		return err
	}

	rawX, err := mat_.VStack(x)
	if err != nil {
		return err
	}
	yAll, err := trialset.ConcatTime(tapered)
	if err != nil {
		return err
	}

	delays, err := delay.Delays(t.opt.TMin, t.opt.TMax, t.opt.SFreq)
	if err != nil {
		return err
	}
	// one extra padded lag absorbs the worst edge energy during solving and
	// is dropped immediately after each solve
	solveDelays := append(append([]int{}, delays...), delays[len(delays)-1]+1)

	embFull, err := delay.Embed(rawX, solveDelays, t.opt.FitIntercept)
	if err != nil {
		return err
	}

	_, nChannels, nOutFeats := yAll.Dims()
	filters := make([]Filter, nChannels)

	parallelism := t.opt.Parallelism
	if parallelism <= 0 || parallelism > nChannels {
		parallelism = nChannels
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, parallelism)
	for c := 0; c < nChannels; c++ {
		sem <- struct{}{}
		wg.Add(1)

		go func(c int) {
			defer func() {
				wg.Done()
				<-sem
			}()

			filter, err := t.fitChannel(rawX, embFull, yAll, c, delays, solveDelays)
			if err != nil {
				slog.Error("unable to fit output channel", "channel", c, "error", err.Error())
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("output channel %d, %w", c, err)
				}
				errMu.Unlock()
				return
			}
			filters[c] = filter
		}(c)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	_, nFeatures := rawX.Dims()
	t.delays = delays
	t.filters = filters
	t.targetRank = y[0].Rank()
	t.nFeatures = nFeatures
	t.nChannels = nChannels
	t.nOutFeats = nOutFeats
	t.fitted = true
	return nil
}

// fitChannel selects this channel's regularization strength, refits on the
// full embedded data and trims the padded and final lag columns.
func (t *TRF) fitChannel(rawX *mat.Dense, embFull *mat.Dense, yAll *trialset.Tensor, c int, delays, solveDelays []int) (Filter, error) {
	yc, err := yAll.Channel(c)
	if err != nil {
		return Filter{}, err
	}

	alpha := t.opt.Alphas[0]
	var xvScores []float64
	if len(t.opt.Alphas) > 1 {
		slog.Debug("running cross-validation on alphas", "channel", c)
		res, err := xval.SelectAlpha(rawX, yc, solveDelays, len(delays), &xval.Options{
			RegType:      t.opt.RegType,
			Alphas:       t.opt.Alphas,
			TestFraction: t.opt.XValTestFraction,
			FitIntercept: t.opt.FitIntercept,
			Scoring:      t.opt.Scoring,
		})
		if err != nil {
			return Filter{}, err
		}
		alpha = res.BestAlpha
		xvScores = res.MeanScores
	}

	lr, err := models.NewLagRidge(&models.LagRidgeOptions{
		RegType:      t.opt.RegType,
		Alpha:        alpha,
		NumLags:      len(solveDelays),
		FitIntercept: t.opt.FitIntercept,
	})
	if err != nil {
		return Filter{}, err
	}
	if err := lr.Fit(embFull, yc); err != nil {
		return Filter{}, err
	}

	// drop the padded lag and the last real lag, which systematically
	// underestimates its contribution from boundary truncation
	kept, err := models.TrimLags(lr.Coef(), len(solveDelays), len(delays)-1)
	if err != nil {
		return Filter{}, err
	}

	xOffset, yOffset := lr.Covariance().Offsets()
	intercept := make([]float64, len(yOffset))
	if t.opt.FitIntercept {
		keptOffset := models.TrimLagOffsets(xOffset, len(solveDelays), len(delays)-1)
		for i := range yOffset {
			intercept[i] = yOffset[i] - floats.Dot(keptOffset, mat.Col(nil, i, kept))
		}
	}

	return Filter{
		Alpha:      alpha,
		Coef:       kept,
		Intercept:  intercept,
		XValScores: xvScores,
	}, nil
}

// Predict applies the fitted filters to each trial, returning one prediction
// tensor per input trial with the same time length and the output
// dimensionality recorded at fit time.
func (t *TRF) Predict(x []*mat.Dense) ([]*trialset.Tensor, error) {
	if t == nil {
		return nil, ErrUninitializedTRF
	}
	if !t.fitted {
		return nil, ErrNotFitted
	}

	keptDelays := t.delays[:len(t.delays)-1]

	preds := make([]*trialset.Tensor, 0, len(x))
	for i, trial := range x {
		n, nFeatures := trial.Dims()
		if nFeatures != t.nFeatures {
			return nil, fmt.Errorf("trial %d has %d features, expected %d, %w", i, nFeatures, t.nFeatures, ErrInconsistentTrialShape)
		}

		emb, err := delay.Embed(trial, keptDelays, t.opt.FitIntercept)
		if err != nil {
			return nil, err
		}

		pred, err := t.newTargetTensor(n)
		if err != nil {
			return nil, err
		}
		for c := 0; c < t.nChannels; c++ {
			var res mat.Dense
			res.Mul(emb, t.filters[c].Coef)
			for ti := 0; ti < n; ti++ {
				for f := 0; f < t.nOutFeats; f++ {
					pred.Set(ti, c, f, res.At(ti, f)+t.filters[c].Intercept[f])
				}
			}
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// Score predicts each trial and computes the configured agreement metric per
// output channel, flattening time and any output-feature axis together.
// Trial scores are averaged with weights proportional to trial duration
// unless weightTrialDuration is false, which averages uniformly.
func (t *TRF) Score(x []*mat.Dense, y []*trialset.Tensor, weightTrialDuration bool) ([]float64, error) {
	if t == nil {
		return nil, ErrUninitializedTRF
	}
	if !t.fitted {
		return nil, ErrNotFitted
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d predictor trials and %d target trials, %w", len(x), len(y), ErrTrialLenMismatch)
	}

	scorer, err := scores.New(t.opt.Scoring)
	if err != nil {
		return nil, err
	}

	for i, yy := range y {
		if yy.Rank() != t.targetRank {
			return nil, fmt.Errorf("trial %d has rank %d targets, expected %d, %w", i, yy.Rank(), t.targetRank, ErrTargetRankMismatch)
		}
	}

	preds, err := t.Predict(x)
	if err != nil {
		return nil, err
	}

	var weights []float64
	if weightTrialDuration {
		lengths := make([]int, len(x))
		for i, trial := range x {
			n, _ := trial.Dims()
			lengths[i] = n
		}
		weights = scores.DurationWeights(lengths)
	}

	out := make([]float64, t.nChannels)
	trialScores := make([]float64, len(x))
	for c := 0; c < t.nChannels; c++ {
		for i := range x {
			predicted, err := flattenChannel(preds[i], c)
			if err != nil {
				return nil, err
			}
			actual, err := flattenChannel(y[i], c)
			if err != nil {
				return nil, err
			}
			s, err := scorer(predicted, actual)
			if err != nil {
				return nil, err
			}
			trialScores[i] = s
		}
		agg, err := scores.WeightedMean(trialScores, weights)
		if err != nil {
			return nil, err
		}
		out[c] = agg
	}
	return out, nil
}

// taperTargets fades each trial target in and out with a half-Hamming window
// sized to the lag window, suppressing the discontinuities delay embedding
// would otherwise introduce at trial boundaries. Input tensors are copied,
// never mutated.
func (t *TRF) taperTargets(y []*trialset.Tensor) ([]*trialset.Tensor, error) {
	taperLen := 2 * int((t.opt.TMax-t.opt.TMin)*t.opt.SFreq)

	tapered := make([]*trialset.Tensor, len(y))
	for i, yy := range y {
		cp := yy.Copy()
		if taperLen < 2 {
			tapered[i] = cp
			continue
		}

		n, _, _ := cp.Dims()
		if n < taperLen {
			return nil, fmt.Errorf("trial %d has %d samples, need at least %d, %w", i, n, taperLen, ErrTrialTooShort)
		}

		hamming, err := window.Hamming(taperLen)
		if err != nil {
			return nil, err
		}
		half := taperLen / 2
		for j := 0; j < half; j++ {
			cp.ScaleTime(j, hamming[j])
			cp.ScaleTime(n-half+j, hamming[taperLen-half+j])
		}
		tapered[i] = cp
	}
	return tapered, nil
}

func (t *TRF) newTargetTensor(n int) (*trialset.Tensor, error) {
	if t.targetRank == 2 {
		return trialset.NewTensor2D(n, t.nChannels)
	}
	return trialset.NewTensor(n, t.nChannels, t.nOutFeats)
}

// flattenChannel flattens one channel of a tensor across time and any output
// feature axis into a single vector, time-major.
func flattenChannel(ts *trialset.Tensor, c int) ([]float64, error) {
	n, _, nf := ts.Dims()
	out := make([]float64, 0, n*nf)
	for i := 0; i < n; i++ {
		for k := 0; k < nf; k++ {
			out = append(out, ts.At(i, c, k))
		}
	}
	return out, nil
}

func validateTrials(x []*mat.Dense, y []*trialset.Tensor) error {
	if len(x) == 0 {
		return ErrNoTrials
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d predictor trials and %d target trials, %w", len(x), len(y), ErrTrialLenMismatch)
	}

	_, nFeatures := x[0].Dims()
	_, nChannels, nOutFeats := y[0].Dims()
	rank := y[0].Rank()
	for i := range x {
		xn, xf := x[i].Dims()
		yn, yc, yf := y[i].Dims()
		if xf != nFeatures || yc != nChannels || yf != nOutFeats || y[i].Rank() != rank {
			return fmt.Errorf("at trial %d, %w", i, ErrInconsistentTrialShape)
		}
		if xn != yn {
			return fmt.Errorf("trial %d has %d predictor samples and %d target samples, %w", i, xn, yn, ErrInconsistentTrialShape)
		}
	}
	return nil
}
