// Package delay expands a time-varying predictor into its time-delay
// embedding: one shifted copy of the signal per integer sample lag within the
// configured window.
package delay

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidLagWindow  = errors.New("tmin must be less than tmax")
	ErrInvalidSampleFreq = errors.New("sample frequency must be positive")
	ErrNoDelays          = errors.New("no delays to embed")
)

// Delays converts a lag window in seconds into an ordered set of integer
// sample offsets, from round(tmin*sfreq) through round(tmax*sfreq) inclusive.
// Positive lags point backwards in time relative to the input.
func Delays(tmin, tmax, sfreq float64) ([]int, error) {
	if tmin >= tmax {
		return nil, fmt.Errorf("got tmin=%v and tmax=%v, %w", tmin, tmax, ErrInvalidLagWindow)
	}
	if sfreq <= 0 {
		return nil, fmt.Errorf("got sfreq=%v, %w", sfreq, ErrInvalidSampleFreq)
	}

	smin := int(math.Round(tmin * sfreq))
	smax := int(math.Round(tmax * sfreq))
	delays := make([]int, 0, smax-smin+1)
	for d := smin; d <= smax; d++ {
		delays = append(delays, d)
	}
	return delays, nil
}

// Embed builds the delay-embedded design matrix of shape
// (time, features*len(delays)). Column f*len(delays)+k holds the predictor's
// feature f shifted by delays[k] samples. Positions shifted past the start or
// end of the signal are filled with the per-feature mean when fillMean is set
// and with zero otherwise.
func Embed(x *mat.Dense, delays []int, fillMean bool) (*mat.Dense, error) {
	if len(delays) == 0 {
		return nil, ErrNoDelays
	}

	n, nFeats := x.Dims()
	nDelays := len(delays)

	fill := make([]float64, nFeats)
	if fillMean {
		for j := 0; j < nFeats; j++ {
			fill[j] = stat.Mean(mat.Col(nil, j, x), nil)
		}
	}

	out := mat.NewDense(n, nFeats*nDelays, nil)
	for j := 0; j < nFeats; j++ {
		for k, d := range delays {
			col := j*nDelays + k
			for t := 0; t < n; t++ {
				src := t - d
				if src < 0 || src >= n {
					out.Set(t, col, fill[j])
					continue
				}
				out.Set(t, col, x.At(src, j))
			}
		}
	}
	return out, nil
}
