package trf

import (
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/mat"
)

// LineTSeries generates an echart multi-line chart for some arbitrary set of
// series sharing one sample axis. Each series must have the same length.
func LineTSeries(title string, seriesName []string, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	var n int
	if len(y) > 0 {
		n = len(y[0])
	}
	xAxis := make([]int, 0, n)
	for i := 0; i < n; i++ {
		xAxis = append(xAxis, i)
	}

	lineData := make([][]opts.LineData, len(y))
	for i := 0; i < len(y); i++ {
		lineData[i] = make([]opts.LineData, 0, len(y[i]))
		for j := 0; j < len(y[i]); j++ {
			if math.IsNaN(y[i][j]) {
				continue
			}
			lineData[i] = append(lineData[i], opts.LineData{Value: y[i][j]})
		}
	}

	line = line.SetXAxis(xAxis)
	for i, series := range seriesName {
		line = line.AddSeries(series, lineData[i])
	}

	return line
}

// LineFilter generates an echart line chart of one fitted filter, one series
// per predictor feature across the lag window in seconds.
func LineFilter(title string, delays []int, sfreq float64, coef *mat.Dense) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	lags := make([]float64, 0, len(delays))
	for _, d := range delays {
		lags = append(lags, float64(d)/sfreq)
	}

	nFeats, nLags := coef.Dims()
	line = line.SetXAxis(lags)
	for f := 0; f < nFeats; f++ {
		lineData := make([]opts.LineData, 0, nLags)
		for k := 0; k < nLags; k++ {
			lineData = append(lineData, opts.LineData{Value: coef.At(f, k)})
		}
		line = line.AddSeries(fmt.Sprintf("feature %d", f), lineData)
	}

	return line
}
