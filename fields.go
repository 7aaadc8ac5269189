package trf

import (
	"fmt"

	"github.com/aouyang1/go-trf/trialset"
	"gonum.org/v1/gonum/mat"
)

// FitFields resolves named predictor and target fields from a trial
// container and fits on the resulting per-trial arrays.
func (t *TRF) FitFields(r trialset.Resolver, xField, yField string) error {
	x, err := resolvePredictors(r, xField)
	if err != nil {
		return err
	}
	y, err := r.Resolve(yField)
	if err != nil {
		return err
	}
	return t.Fit(x, y)
}

// PredictFields resolves a named predictor field from a trial container and
// predicts each of its trials.
func (t *TRF) PredictFields(r trialset.Resolver, xField string) ([]*trialset.Tensor, error) {
	x, err := resolvePredictors(r, xField)
	if err != nil {
		return nil, err
	}
	return t.Predict(x)
}

// ScoreFields resolves named predictor and target fields from a trial
// container and scores predictions against the targets.
func (t *TRF) ScoreFields(r trialset.Resolver, xField, yField string, weightTrialDuration bool) ([]float64, error) {
	x, err := resolvePredictors(r, xField)
	if err != nil {
		return nil, err
	}
	y, err := r.Resolve(yField)
	if err != nil {
		return nil, err
	}
	return t.Score(x, y, weightTrialDuration)
}

func resolvePredictors(r trialset.Resolver, field string) ([]*mat.Dense, error) {
	trials, err := r.Resolve(field)
	if err != nil {
		return nil, err
	}

	x := make([]*mat.Dense, 0, len(trials))
	for i, trial := range trials {
		m, err := trial.Matrix()
		if err != nil {
			return nil, fmt.Errorf("field %q trial %d, %w", field, i, ErrPredictorRank)
		}
		x = append(x, m)
	}
	return x, nil
}
