package trialset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidRank      = errors.New("tensor rank must be 2 or 3")
	ErrNegativeDim      = errors.New("negative dimensions not allowed")
	ErrShapeMismatch    = errors.New("tensor shapes do not match")
	ErrIndexOutOfBounds = errors.New("tensor index out of bounds")
	ErrNoTensors        = errors.New("no tensors to concatenate")
)

// Tensor is a per-trial target array of shape (time, channels) for rank 2 or
// (time, channels, features) for rank 3. Data is stored row-major with the
// feature axis fastest. A rank-2 tensor is stored with a single feature.
type Tensor struct {
	data []float64
	t    int
	c    int
	f    int
	rank int
}

// NewTensor allocates a zeroed rank-3 tensor.
func NewTensor(t, c, f int) (*Tensor, error) {
	if t < 0 || c < 0 || f < 0 {
		return nil, ErrNegativeDim
	}
	return &Tensor{
		data: make([]float64, t*c*f),
		t:    t,
		c:    c,
		f:    f,
		rank: 3,
	}, nil
}

// NewTensor2D allocates a zeroed rank-2 tensor.
func NewTensor2D(t, c int) (*Tensor, error) {
	ts, err := NewTensor(t, c, 1)
	if err != nil {
		return nil, err
	}
	ts.rank = 2
	return ts, nil
}

// FromMatrix wraps a copy of a dense matrix as a rank-2 tensor with shape
// (rows, cols).
func FromMatrix(x *mat.Dense) *Tensor {
	m, n := x.Dims()
	ts := &Tensor{
		data: make([]float64, m*n),
		t:    m,
		c:    n,
		f:    1,
		rank: 2,
	}
	for i := 0; i < m; i++ {
		copy(ts.data[i*n:(i+1)*n], x.RawRowView(i))
	}
	return ts
}

// Rank returns 2 or 3 depending on whether the tensor carries an output
// feature axis.
func (ts *Tensor) Rank() int {
	return ts.rank
}

// Dims returns the time, channel and feature dimensions. The feature
// dimension is 1 for rank-2 tensors.
func (ts *Tensor) Dims() (t, c, f int) {
	return ts.t, ts.c, ts.f
}

// At returns the value at time i, channel j, feature k.
func (ts *Tensor) At(i, j, k int) float64 {
	return ts.data[(i*ts.c+j)*ts.f+k]
}

// Set stores a value at time i, channel j, feature k.
func (ts *Tensor) Set(i, j, k int, v float64) {
	ts.data[(i*ts.c+j)*ts.f+k] = v
}

// Copy returns a deep copy of the tensor.
func (ts *Tensor) Copy() *Tensor {
	data := make([]float64, len(ts.data))
	copy(data, ts.data)
	return &Tensor{
		data: data,
		t:    ts.t,
		c:    ts.c,
		f:    ts.f,
		rank: ts.rank,
	}
}

// ScaleTime multiplies every channel and feature at time index i by w.
func (ts *Tensor) ScaleTime(i int, w float64) {
	row := ts.data[i*ts.c*ts.f : (i+1)*ts.c*ts.f]
	for j := range row {
		row[j] *= w
	}
}

// Channel extracts one output channel as a (time, features) dense matrix.
func (ts *Tensor) Channel(c int) (*mat.Dense, error) {
	if c < 0 || c >= ts.c {
		return nil, fmt.Errorf("channel %d with %d channels, %w", c, ts.c, ErrIndexOutOfBounds)
	}
	out := mat.NewDense(ts.t, ts.f, nil)
	for i := 0; i < ts.t; i++ {
		for k := 0; k < ts.f; k++ {
			out.Set(i, k, ts.At(i, c, k))
		}
	}
	return out, nil
}

// Matrix returns the rank-2 tensor as a (time, channels) dense matrix.
func (ts *Tensor) Matrix() (*mat.Dense, error) {
	if ts.rank != 2 {
		return nil, fmt.Errorf("rank %d tensor, %w", ts.rank, ErrInvalidRank)
	}
	return mat.NewDense(ts.t, ts.c, ts.data), nil
}

// ConcatTime concatenates tensors along the time axis. All tensors must share
// channel and feature dimensions and rank.
func ConcatTime(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, ErrNoTensors
	}

	first := tensors[0]
	var t int
	for i, ts := range tensors {
		if ts.c != first.c || ts.f != first.f || ts.rank != first.rank {
			return nil, fmt.Errorf("at tensor %d, %w", i, ErrShapeMismatch)
		}
		t += ts.t
	}

	data := make([]float64, 0, t*first.c*first.f)
	for _, ts := range tensors {
		data = append(data, ts.data...)
	}
	return &Tensor{
		data: data,
		t:    t,
		c:    first.c,
		f:    first.f,
		rank: first.rank,
	}, nil
}
