package trf

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var ErrNoOptionsInModel = errors.New("no options set in model")

// FilterWeights is the serializable form of one output channel's filter.
type FilterWeights struct {
	Alpha      float64     `json:"alpha"`
	Intercept  []float64   `json:"intercept"`
	Coef       [][]float64 `json:"coef"`
	XValScores []float64   `json:"xval_scores,omitempty"`
}

// Model represents a serializable format of a fitted TRF storing the
// options, lag window, target dimensionality and per-channel filters.
type Model struct {
	Options     *Options        `json:"options"`
	Delays      []int           `json:"delays"`
	TargetRank  int             `json:"target_rank"`
	NumFeatures int             `json:"num_features"`
	Filters     []FilterWeights `json:"filters"`
}

// Model returns the serializable format of the fitted TRF.
func (t *TRF) Model() (Model, error) {
	if t == nil {
		return Model{}, ErrUninitializedTRF
	}
	if !t.fitted {
		return Model{}, ErrNotFitted
	}

	filters := make([]FilterWeights, 0, len(t.filters))
	for _, f := range t.filters {
		p, nTargets := f.Coef.Dims()
		coef := make([][]float64, p)
		for i := 0; i < p; i++ {
			row := make([]float64, nTargets)
			copy(row, f.Coef.RawRowView(i))
			coef[i] = row
		}

		intercept := make([]float64, len(f.Intercept))
		copy(intercept, f.Intercept)

		filters = append(filters, FilterWeights{
			Alpha:      f.Alpha,
			Intercept:  intercept,
			Coef:       coef,
			XValScores: f.XValScores,
		})
	}

	return Model{
		Options:     t.opt,
		Delays:      append([]int{}, t.delays...),
		TargetRank:  t.targetRank,
		NumFeatures: t.nFeatures,
		Filters:     filters,
	}, nil
}

// NewFromModel creates a TRF instance from a previously serialized model.
// The instance can be used for inference immediately and does not need to be
// fit again.
func NewFromModel(model Model) (*TRF, error) {
	if model.Options == nil {
		return nil, ErrNoOptionsInModel
	}
	opt, err := model.Options.Validate()
	if err != nil {
		return nil, err
	}
	if len(model.Filters) == 0 {
		return nil, ErrNotFitted
	}

	filters := make([]Filter, 0, len(model.Filters))
	var nOutFeats int
	for _, fw := range model.Filters {
		p := len(fw.Coef)
		if p == 0 {
			return nil, ErrNotFitted
		}
		nOutFeats = len(fw.Coef[0])

		coef := mat.NewDense(p, nOutFeats, nil)
		for i, row := range fw.Coef {
			coef.SetRow(i, row)
		}

		filters = append(filters, Filter{
			Alpha:      fw.Alpha,
			Coef:       coef,
			Intercept:  append([]float64{}, fw.Intercept...),
			XValScores: fw.XValScores,
		})
	}

	return &TRF{
		opt:        opt,
		delays:     append([]int{}, model.Delays...),
		filters:    filters,
		targetRank: model.TargetRank,
		nFeatures:  model.NumFeatures,
		nChannels:  len(filters),
		nOutFeats:  nOutFeats,
		fitted:     true,
	}, nil
}
