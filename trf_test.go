package trf

import (
	"testing"

	"github.com/aouyang1/go-trf/models"
	"github.com/aouyang1/go-trf/scores"
	"github.com/aouyang1/go-trf/trialset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// firFilter is the two-lag impulse response used throughout, y[t] = x[t] - 0.5*x[t-1].
func firFilter() (*mat.Dense, []int) {
	return mat.NewDense(1, 2, []float64{1.0, -0.5}), []int{0, 1}
}

// firOptions covers a 0-20ms lag window at 100Hz so the retained filter spans
// exactly the two simulated lags.
func firOptions(alphas ...float64) *Options {
	return &Options{
		TMin:   0.0,
		TMax:   0.02,
		SFreq:  100.0,
		Alphas: alphas,
	}
}

func simTrial(n int, nChannels int, seed uint64) (*mat.Dense, *trialset.Tensor) {
	h, delays := firFilter()
	return trialset.SimulateTrial(n, nChannels, h, delays, &trialset.SimulateOptions{
		NumFeatures: 1,
		RandomState: seed,
	})
}

func TestTRFFitRecoversFilter(t *testing.T) {
	x, y := simTrial(4000, 1, 11)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	delays, err := f.Delays()
	require.Nil(t, err)
	assert.Equal(t, []int{0, 1}, delays)

	coef, err := f.Coef(0, 0)
	require.Nil(t, err)
	assert.InDelta(t, 1.0, coef.At(0, 0), 1e-2)
	assert.InDelta(t, -0.5, coef.At(0, 1), 1e-2)

	filters, err := f.Filters()
	require.Nil(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, 0.0, filters[0].Alpha)
	assert.Nil(t, filters[0].XValScores)
}

func TestTRFFitZeroFeature(t *testing.T) {
	h, delays := firFilter()
	x0 := trialset.GenerateNoise(2000, 1, 21)
	clean := trialset.ConvolveFIR(x0, h, delays)

	// second feature column carries no signal at all
	x := mat.NewDense(2000, 2, nil)
	y, err := trialset.NewTensor2D(2000, 1)
	require.Nil(t, err)
	for i := 0; i < 2000; i++ {
		x.Set(i, 0, x0.At(i, 0))
		y.Set(i, 0, 0, clean[i])
	}

	f, err := New(firOptions(1e-8))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	coef, err := f.Coef(0, 0)
	require.Nil(t, err)
	assert.InDelta(t, 1.0, coef.At(0, 0), 1e-2)
	assert.InDelta(t, -0.5, coef.At(0, 1), 1e-2)
	assert.InDelta(t, 0.0, coef.At(1, 0), 1e-6)
	assert.InDelta(t, 0.0, coef.At(1, 1), 1e-6)
}

func TestTRFFitDuplicateFeatures(t *testing.T) {
	h, delays := firFilter()
	x0 := trialset.GenerateNoise(2000, 1, 31)
	clean := trialset.ConvolveFIR(x0, h, delays)

	x := mat.NewDense(2000, 2, nil)
	y, err := trialset.NewTensor2D(2000, 1)
	require.Nil(t, err)
	for i := 0; i < 2000; i++ {
		x.Set(i, 0, x0.At(i, 0))
		x.Set(i, 1, x0.At(i, 0))
		y.Set(i, 0, 0, clean[i])
	}

	// identical columns make the unregularized covariance exactly singular
	f, err := New(firOptions(0))
	require.Nil(t, err)
	err = f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y})
	assert.ErrorIs(t, err, models.ErrSingularCovariance)

	// a whisper of ridge splits the filter evenly between the duplicates
	f, err = New(firOptions(1e-6))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	coef, err := f.Coef(0, 0)
	require.Nil(t, err)
	for feat := 0; feat < 2; feat++ {
		assert.InDelta(t, 0.5, coef.At(feat, 0), 1e-2)
		assert.InDelta(t, -0.25, coef.At(feat, 1), 1e-2)
	}
}

func TestTRFFitMultiChannel(t *testing.T) {
	x, y := simTrial(2000, 2, 41)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	filters, err := f.Filters()
	require.Nil(t, err)
	require.Len(t, filters, 2)

	// both channels carry the same clean signal and must agree
	assert.True(t, mat.EqualApprox(filters[0].Coef, filters[1].Coef, 1e-12))

	chanScores, err := f.Score([]*mat.Dense{x}, []*trialset.Tensor{y}, true)
	require.Nil(t, err)
	require.Len(t, chanScores, 2)
	for _, s := range chanScores {
		assert.Greater(t, s, 0.99)
	}
}

func TestTRFFitShapes(t *testing.T) {
	x := trialset.GenerateNoise(2000, 20, 51)
	h, delays := firFilter()
	clean := trialset.ConvolveFIR(x.Slice(0, 2000, 0, 1).(*mat.Dense), h, delays)
	y, err := trialset.NewTensor2D(2000, 1)
	require.Nil(t, err)
	for i := 0; i < 2000; i++ {
		y.Set(i, 0, 0, clean[i])
	}

	opt := &Options{
		TMin:   0.0,
		TMax:   0.1,
		SFreq:  100.0,
		Alphas: []float64{1.0},
	}
	f, err := New(opt)
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	fitDelays, err := f.Delays()
	require.Nil(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, fitDelays)

	coef, err := f.Coef(0, 0)
	require.Nil(t, err)
	rows, cols := coef.Dims()
	assert.Equal(t, 20, rows)
	assert.Equal(t, 10, cols)

	filters, err := f.Filters()
	require.Nil(t, err)
	rows, cols = filters[0].Coef.Dims()
	assert.Equal(t, 200, rows)
	assert.Equal(t, 1, cols)
}

func TestTRFFitDecoding(t *testing.T) {
	// anti-causal window over rank-3 targets, as in stimulus reconstruction
	x := trialset.GenerateNoise(300, 4, 61)
	y, err := trialset.NewTensor(300, 2, 3)
	require.Nil(t, err)
	noise := trialset.GenerateNoise(300, 6, 62)
	for i := 0; i < 300; i++ {
		for c := 0; c < 2; c++ {
			for k := 0; k < 3; k++ {
				y.Set(i, c, k, noise.At(i, c*3+k))
			}
		}
	}

	opt := &Options{
		TMin:   -0.05,
		TMax:   0.0,
		SFreq:  100.0,
		Alphas: []float64{1.0},
	}
	f, err := New(opt)
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	fitDelays, err := f.Delays()
	require.Nil(t, err)
	assert.Equal(t, []int{-5, -4, -3, -2, -1}, fitDelays)

	coef, err := f.Coef(1, 2)
	require.Nil(t, err)
	rows, cols := coef.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 5, cols)

	preds, err := f.Predict([]*mat.Dense{x})
	require.Nil(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 3, preds[0].Rank())
	n, c, k := preds[0].Dims()
	assert.Equal(t, 300, n)
	assert.Equal(t, 2, c)
	assert.Equal(t, 3, k)
}

func TestTRFFitMultiTrial(t *testing.T) {
	x1, y1 := simTrial(1000, 1, 71)
	x2, y2 := simTrial(1500, 1, 72)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x1, x2}, []*trialset.Tensor{y1, y2}))

	preds, err := f.Predict([]*mat.Dense{x1, x2})
	require.Nil(t, err)
	require.Len(t, preds, 2)
	n, _, _ := preds[0].Dims()
	assert.Equal(t, 1000, n)
	n, _, _ = preds[1].Dims()
	assert.Equal(t, 1500, n)

	weighted, err := f.Score([]*mat.Dense{x1, x2}, []*trialset.Tensor{y1, y2}, true)
	require.Nil(t, err)
	uniform, err := f.Score([]*mat.Dense{x1, x2}, []*trialset.Tensor{y1, y2}, false)
	require.Nil(t, err)

	require.Len(t, weighted, 1)
	require.Len(t, uniform, 1)
	assert.Greater(t, weighted[0], 0.99)
	assert.Greater(t, uniform[0], 0.99)
}

func TestTRFFitCrossValidation(t *testing.T) {
	x, y := simTrial(1000, 1, 81)

	opt := firOptions(0, 1e6)
	opt.Scoring = scores.TypeRSquared

	f, err := New(opt)
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	filters, err := f.Filters()
	require.Nil(t, err)
	require.Len(t, filters, 1)

	// the simulated response is noise free, so shrinkage can only lose
	assert.Equal(t, 0.0, filters[0].Alpha)
	require.Len(t, filters[0].XValScores, 2)
	assert.Greater(t, filters[0].XValScores[0], filters[0].XValScores[1])
}

func TestTRFFailedRefitLeavesUnfit(t *testing.T) {
	x, y := simTrial(1000, 1, 151)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	_, err = f.Predict([]*mat.Dense{x})
	require.Nil(t, err)

	// a failed refit must not leave the previous coefficients reachable
	assert.ErrorIs(t, f.Fit(nil, nil), ErrNoTrials)

	_, err = f.Predict([]*mat.Dense{x})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Delays()
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Filters()
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Score([]*mat.Dense{x}, []*trialset.Tensor{y}, false)
	assert.ErrorIs(t, err, ErrNotFitted)

	// a subsequent successful fit recovers the model
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))
	_, err = f.Predict([]*mat.Dense{x})
	assert.Nil(t, err)
}

func TestTRFFitIdempotent(t *testing.T) {
	x, y := simTrial(1000, 1, 91)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))
	first, err := f.Coef(0, 0)
	require.Nil(t, err)

	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))
	second, err := f.Coef(0, 0)
	require.Nil(t, err)

	assert.True(t, mat.Equal(first, second))
}

func TestTRFFitIntercept(t *testing.T) {
	h, delays := firFilter()
	x0 := trialset.GenerateNoise(2000, 1, 101)
	clean := trialset.ConvolveFIR(x0, h, delays)

	// shift the whole response by a constant offset
	y, err := trialset.NewTensor2D(2000, 1)
	require.Nil(t, err)
	for i := 0; i < 2000; i++ {
		y.Set(i, 0, 0, clean[i]+3.0)
	}

	opt := firOptions(0)
	opt.FitIntercept = true
	f, err := New(opt)
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x0}, []*trialset.Tensor{y}))

	filters, err := f.Filters()
	require.Nil(t, err)
	require.Len(t, filters[0].Intercept, 1)
	assert.InDelta(t, 3.0, filters[0].Intercept[0], 0.1)

	coef, err := f.Coef(0, 0)
	require.Nil(t, err)
	assert.InDelta(t, 1.0, coef.At(0, 0), 1e-2)
	assert.InDelta(t, -0.5, coef.At(0, 1), 1e-2)
}

func TestTRFNotFitted(t *testing.T) {
	f, err := New(firOptions(0))
	require.Nil(t, err)

	_, err = f.Delays()
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Filters()
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Coef(0, 0)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Predict(nil)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Score(nil, nil, false)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Model()
	assert.ErrorIs(t, err, ErrNotFitted)

	var uninit *TRF
	assert.ErrorIs(t, uninit.Fit(nil, nil), ErrUninitializedTRF)
	_, err = uninit.Delays()
	assert.ErrorIs(t, err, ErrUninitializedTRF)
}

func TestTRFFitValidation(t *testing.T) {
	x, y := simTrial(100, 1, 111)
	xOther := trialset.GenerateNoise(100, 2, 112)
	xShort, yShort := simTrial(3, 1, 113)

	testData := map[string]struct {
		x   []*mat.Dense
		y   []*trialset.Tensor
		err error
	}{
		"no trials":      {err: ErrNoTrials},
		"count mismatch": {x: []*mat.Dense{x}, y: nil, err: ErrTrialLenMismatch},
		"feature count changes": {
			x:   []*mat.Dense{x, xOther},
			y:   []*trialset.Tensor{y, y},
			err: ErrInconsistentTrialShape,
		},
		"sample count mismatch": {
			x:   []*mat.Dense{xOther.Slice(0, 50, 0, 2).(*mat.Dense), x},
			y:   []*trialset.Tensor{y, y},
			err: ErrInconsistentTrialShape,
		},
		"trial too short": {
			x:   []*mat.Dense{xShort},
			y:   []*trialset.Tensor{yShort},
			err: ErrTrialTooShort,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			f, err := New(firOptions(0))
			require.Nil(t, err)
			assert.ErrorIs(t, f.Fit(td.x, td.y), td.err)
		})
	}
}

func TestTRFPredictValidation(t *testing.T) {
	x, y := simTrial(1000, 1, 121)

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.Fit([]*mat.Dense{x}, []*trialset.Tensor{y}))

	_, err = f.Predict([]*mat.Dense{trialset.GenerateNoise(100, 3, 122)})
	assert.ErrorIs(t, err, ErrInconsistentTrialShape)

	_, err = f.Score([]*mat.Dense{x}, nil, false)
	assert.ErrorIs(t, err, ErrTrialLenMismatch)

	y3, err := trialset.NewTensor(1000, 1, 1)
	require.Nil(t, err)
	_, err = f.Score([]*mat.Dense{x}, []*trialset.Tensor{y3}, false)
	assert.ErrorIs(t, err, ErrTargetRankMismatch)

	_, err = f.Coef(1, 0)
	assert.ErrorIs(t, err, ErrChannelOutOfBounds)
	_, err = f.Coef(0, 1)
	assert.ErrorIs(t, err, ErrChannelOutOfBounds)
}

func TestTRFFields(t *testing.T) {
	x, y := simTrial(1000, 1, 131)

	ts := trialset.NewTrialSet()
	require.Nil(t, ts.AddField("stim", []*trialset.Tensor{trialset.FromMatrix(x)}))
	require.Nil(t, ts.AddField("resp", []*trialset.Tensor{y}))

	f, err := New(firOptions(0))
	require.Nil(t, err)
	require.Nil(t, f.FitFields(ts, "stim", "resp"))

	preds, err := f.PredictFields(ts, "stim")
	require.Nil(t, err)
	require.Len(t, preds, 1)

	chanScores, err := f.ScoreFields(ts, "stim", "resp", true)
	require.Nil(t, err)
	require.Len(t, chanScores, 1)
	assert.Greater(t, chanScores[0], 0.99)

	assert.ErrorIs(t, f.FitFields(ts, "missing", "resp"), trialset.ErrFieldNotFound)
	assert.ErrorIs(t, f.FitFields(ts, "stim", "missing"), trialset.ErrFieldNotFound)

	cube, err := trialset.NewTensor(1000, 1, 2)
	require.Nil(t, err)
	require.Nil(t, ts.AddField("aud", []*trialset.Tensor{cube}))
	assert.ErrorIs(t, f.FitFields(ts, "aud", "resp"), ErrPredictorRank)
}
