// Package mat contains small helpers around gonum dense matrices used
// throughout the TRF fitting pipeline.
package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNegativeDim    = errors.New("negative dimensions not allowed")
	ErrColMismatch    = errors.New("column size mismatch")
	ErrRowMismatch    = errors.New("row size mismatch")
	ErrRowOutOfBounds = errors.New("row is out of bounds")
	ErrNoMatrices     = errors.New("no matrices to stack")
)

// NewDenseFromArray converts a row-major slice of slices into a dense matrix.
// All rows must have the same length.
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if n < 0 {
		n = 0
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// DeleteRows returns a copy of x with rows [start, end) removed, preserving
// the order of the remaining rows.
func DeleteRows(x *mat.Dense, start, end int) (*mat.Dense, error) {
	m, n := x.Dims()
	if start < 0 || end > m || start > end {
		return nil, fmt.Errorf("cannot delete rows [%d, %d) from %d rows, %w", start, end, m, ErrRowOutOfBounds)
	}

	out := mat.NewDense(m-(end-start), n, nil)
	for i := 0; i < start; i++ {
		out.SetRow(i, x.RawRowView(i))
	}
	for i := end; i < m; i++ {
		out.SetRow(start+i-end, x.RawRowView(i))
	}
	return out, nil
}

// VStack stacks matrices vertically into a single dense matrix. All inputs
// must have the same number of columns.
func VStack(xs []*mat.Dense) (*mat.Dense, error) {
	if len(xs) == 0 {
		return nil, ErrNoMatrices
	}

	var m int
	_, n := xs[0].Dims()
	for i, x := range xs {
		xm, xn := x.Dims()
		if xn != n {
			return nil, fmt.Errorf("at matrix %d, %w", i, ErrColMismatch)
		}
		m += xm
	}

	out := mat.NewDense(m, n, nil)
	var row int
	for _, x := range xs {
		xm, _ := x.Dims()
		for i := 0; i < xm; i++ {
			out.SetRow(row, x.RawRowView(i))
			row++
		}
	}
	return out, nil
}
