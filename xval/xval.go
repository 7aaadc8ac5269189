// Package xval selects a per-channel regularization strength by
// cross-validating over contiguous, time-ordered train/test blocks. Folds are
// generated deterministically from a test fraction rather than by random
// shuffling, so samples inside a delay window never leak between train and
// test through reordering.
package xval

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aouyang1/go-trf/delay"
	mat_ "github.com/aouyang1/go-trf/mat"
	"github.com/aouyang1/go-trf/models"
	"github.com/aouyang1/go-trf/scores"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidTestFraction = errors.New("test fraction must be in (0, 0.5]")
	ErrInsufficientSamples = errors.New("insufficient samples for the requested test fraction")
	ErrNoAlphas            = errors.New("no alpha candidates provided")
	ErrNoKeptLags          = errors.New("must keep at least one lag for prediction")
)

// Fold is one contiguous test block of a concatenated time series. The train
// set is the order-preserving complement.
type Fold struct {
	TestStart int
	TestEnd   int
}

// Splits generates contiguous, non-overlapping fold windows over n samples.
// The block size is floor(n*testFraction) and each fold's test window
// advances by one block.
func Splits(n int, testFraction float64) ([]Fold, error) {
	if testFraction <= 0 || testFraction > 0.5 {
		return nil, fmt.Errorf("got %v, %w", testFraction, ErrInvalidTestFraction)
	}

	win := int(float64(n) * testFraction)
	if win == 0 {
		return nil, fmt.Errorf("%d samples with test fraction %v, %w", n, testFraction, ErrInsufficientSamples)
	}

	nFolds := (n-win)/win + 1
	folds := make([]Fold, 0, nFolds)
	for i := 0; i < nFolds; i++ {
		folds = append(folds, Fold{
			TestStart: i * win,
			TestEnd:   i*win + win,
		})
	}
	return folds, nil
}

// Options configures an alpha selection run for a single output channel.
type Options struct {
	RegType      models.RegType
	Alphas       []float64
	TestFraction float64
	FitIntercept bool
	Scoring      scores.Type
}

// Result reports the mean held-out score per alpha candidate and the winner.
type Result struct {
	BestIdx    int
	BestAlpha  float64
	MeanScores []float64
}

// SelectAlpha cross-validates every candidate alpha for one output channel.
// x is the raw concatenated predictor of shape (time, features) and y the
// channel's target of shape (time, targetFeatures). Each fold removes its
// test block from the raw arrays, embeds the spliced remainder with
// solveDelays, and computes the covariance statistics once; every alpha then
// reuses them for its solve. Predictions on the test block use the first
// keepLags lags. The alpha maximizing the mean score wins, with ties broken
// by the first occurrence in the candidate list.
func SelectAlpha(x, y *mat.Dense, solveDelays []int, keepLags int, opt *Options) (Result, error) {
	if opt == nil || len(opt.Alphas) == 0 {
		return Result{}, ErrNoAlphas
	}
	if keepLags <= 0 || keepLags > len(solveDelays) {
		return Result{}, fmt.Errorf("keeping %d of %d lags, %w", keepLags, len(solveDelays), ErrNoKeptLags)
	}

	scorer, err := scores.New(opt.Scoring)
	if err != nil {
		return Result{}, err
	}

	n, _ := x.Dims()
	folds, err := Splits(n, opt.TestFraction)
	if err != nil {
		return Result{}, err
	}

	sums := make([]float64, len(opt.Alphas))
	for _, fold := range folds {
		foldScores, err := scoreFold(x, y, fold, solveDelays, keepLags, scorer, opt)
		if err != nil {
			return Result{}, err
		}
		for i, s := range foldScores {
			sums[i] += s
		}
	}

	res := Result{
		MeanScores: make([]float64, len(opt.Alphas)),
	}
	for i := range sums {
		res.MeanScores[i] = sums[i] / float64(len(folds))
		if res.MeanScores[i] > res.MeanScores[res.BestIdx] {
			res.BestIdx = i
		}
		slog.Debug("cross-validation score", "alpha", opt.Alphas[i], "score", res.MeanScores[i])
	}
	res.BestAlpha = opt.Alphas[res.BestIdx]
	slog.Debug("chose alpha", "alpha", res.BestAlpha)
	return res, nil
}

// scoreFold fits every candidate alpha on the fold's train complement and
// scores its prediction of the held-out block. The covariance pass over the
// train split happens once; the per-alpha work is only the solve.
func scoreFold(x, y *mat.Dense, fold Fold, solveDelays []int, keepLags int, scorer scores.Scorer, opt *Options) ([]float64, error) {
	trainX, err := mat_.DeleteRows(x, fold.TestStart, fold.TestEnd)
	if err != nil {
		return nil, err
	}
	trainY, err := mat_.DeleteRows(y, fold.TestStart, fold.TestEnd)
	if err != nil {
		return nil, err
	}

	embTrain, err := delay.Embed(trainX, solveDelays, opt.FitIntercept)
	if err != nil {
		return nil, err
	}
	lr, err := models.NewLagRidge(&models.LagRidgeOptions{
		RegType:      opt.RegType,
		Alpha:        opt.Alphas[0],
		NumLags:      len(solveDelays),
		FitIntercept: opt.FitIntercept,
	})
	if err != nil {
		return nil, err
	}
	if err := lr.Fit(embTrain, trainY); err != nil {
		return nil, err
	}

	testX := x.Slice(fold.TestStart, fold.TestEnd, 0, trainX.RawMatrix().Cols).(*mat.Dense)
	embTest, err := delay.Embed(mat.DenseCopyOf(testX), solveDelays[:keepLags], opt.FitIntercept)
	if err != nil {
		return nil, err
	}

	nTest := fold.TestEnd - fold.TestStart
	_, nTargets := y.Dims()
	actual := make([]float64, 0, nTest*nTargets)
	for i := fold.TestStart; i < fold.TestEnd; i++ {
		actual = append(actual, y.RawRowView(i)...)
	}

	xOffset, yOffset := lr.Covariance().Offsets()
	keptOffset := models.TrimLagOffsets(xOffset, len(solveDelays), keepLags)

	foldScores := make([]float64, len(opt.Alphas))
	for ai, alpha := range opt.Alphas {
		if err := lr.SolveAlpha(alpha); err != nil {
			return nil, err
		}
		kept, err := models.TrimLags(lr.Coef(), len(solveDelays), keepLags)
		if err != nil {
			return nil, err
		}

		// intercept must come from the retained columns' offsets since the
		// prediction below only uses the trimmed coefficients
		intercept := make([]float64, len(yOffset))
		if opt.FitIntercept {
			for t := range yOffset {
				intercept[t] = yOffset[t] - floats.Dot(keptOffset, mat.Col(nil, t, kept))
			}
		}

		var pred mat.Dense
		pred.Mul(embTest, kept)

		predicted := make([]float64, 0, nTest*nTargets)
		for i := 0; i < nTest; i++ {
			for t := 0; t < nTargets; t++ {
				predicted = append(predicted, pred.At(i, t)+intercept[t])
			}
		}

		s, err := scorer(predicted, actual)
		if err != nil {
			return nil, err
		}
		foldScores[ai] = s
	}
	return foldScores, nil
}
