// Package trialset holds collections of named per-trial arrays. A trial is an
// independently timed recording; fields store one array per trial, such as a
// stimulus representation or a neural response, retrievable by field name.
package trialset

import (
	"errors"
	"fmt"
)

var (
	ErrFieldNotFound    = errors.New("field not found in trial set")
	ErrFieldExists      = errors.New("field already exists in trial set")
	ErrNoTrials         = errors.New("no trials in field")
	ErrTrialCountChange = errors.New("field has a different number of trials")
)

// Resolver looks up a named field returning one array per trial.
type Resolver interface {
	Resolve(field string) ([]*Tensor, error)
}

// TrialSet stores named per-trial arrays. All fields must hold the same
// number of trials, though trial lengths may differ within a field.
type TrialSet struct {
	nTrials int
	fields  map[string][]*Tensor
}

// NewTrialSet returns an empty trial collection.
func NewTrialSet() *TrialSet {
	return &TrialSet{
		fields: make(map[string][]*Tensor),
	}
}

// AddField registers a named field with one array per trial. The first field
// added pins the trial count for the collection.
func (ts *TrialSet) AddField(name string, trials []*Tensor) error {
	if len(trials) == 0 {
		return fmt.Errorf("field %q, %w", name, ErrNoTrials)
	}
	if _, exists := ts.fields[name]; exists {
		return fmt.Errorf("field %q, %w", name, ErrFieldExists)
	}
	if ts.nTrials != 0 && len(trials) != ts.nTrials {
		return fmt.Errorf("field %q has %d trials, expected %d, %w", name, len(trials), ts.nTrials, ErrTrialCountChange)
	}

	cp := make([]*Tensor, len(trials))
	copy(cp, trials)
	ts.fields[name] = cp
	ts.nTrials = len(trials)
	return nil
}

// Resolve returns the per-trial arrays stored under the given field name.
func (ts *TrialSet) Resolve(field string) ([]*Tensor, error) {
	trials, exists := ts.fields[field]
	if !exists {
		return nil, fmt.Errorf("field %q, %w", field, ErrFieldNotFound)
	}
	out := make([]*Tensor, len(trials))
	copy(out, trials)
	return out, nil
}

// NumTrials returns the number of trials held by every field.
func (ts *TrialSet) NumTrials() int {
	return ts.nTrials
}

// Fields returns the registered field names.
func (ts *TrialSet) Fields() []string {
	names := make([]string, 0, len(ts.fields))
	for name := range ts.fields {
		names = append(names, name)
	}
	return names
}
