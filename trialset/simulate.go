package trialset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// SimulateOptions configures synthetic trial generation.
type SimulateOptions struct {
	// NumFeatures is the number of predictor feature columns per trial.
	NumFeatures int

	// NoiseScale scales the gaussian noise added to convolved targets.
	NoiseScale float64

	// RandomState seeds the generator so simulations are reproducible.
	RandomState uint64
}

// NewDefaultSimulateOptions returns a default set of simulation options.
func NewDefaultSimulateOptions() *SimulateOptions {
	return &SimulateOptions{
		NumFeatures: 1,
		NoiseScale:  0.0,
		RandomState: 1,
	}
}

// GenerateNoise produces a (n, nFeats) matrix of standard gaussian samples
// from a seeded generator.
func GenerateNoise(n, nFeats int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed))
	data := make([]float64, n*nFeats)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(n, nFeats, data)
}

// ConvolveFIR applies a finite impulse response filter h of shape
// (nFeats, len(delays)) to the predictor x at the given sample delays,
// assuming zero initial conditions. Positive delays reach into the past.
func ConvolveFIR(x *mat.Dense, h *mat.Dense, delays []int) []float64 {
	n, nFeats := x.Dims()
	y := make([]float64, n)
	for t := 0; t < n; t++ {
		var acc float64
		for j := 0; j < nFeats; j++ {
			for k, d := range delays {
				src := t - d
				if src < 0 || src >= n {
					continue
				}
				acc += h.At(j, k) * x.At(src, j)
			}
		}
		y[t] = acc
	}
	return y
}

// SimulateTrial builds one synthetic predictor/target pair of the requested
// length by convolving seeded noise with h at the given delays. Every output
// channel receives the same filtered signal plus independent noise.
func SimulateTrial(n, nChannels int, h *mat.Dense, delays []int, opt *SimulateOptions) (*mat.Dense, *Tensor) {
	if opt == nil {
		opt = NewDefaultSimulateOptions()
	}

	x := GenerateNoise(n, opt.NumFeatures, opt.RandomState)
	clean := ConvolveFIR(x, h, delays)

	rng := rand.New(rand.NewPCG(opt.RandomState+1, opt.RandomState+1))
	y, _ := NewTensor2D(n, nChannels)
	for t := 0; t < n; t++ {
		for c := 0; c < nChannels; c++ {
			v := clean[t]
			if opt.NoiseScale > 0 {
				v += rng.NormFloat64() * opt.NoiseScale
			}
			y.Set(t, c, 0, v)
		}
	}
	return x, y
}
