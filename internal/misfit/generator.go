package misfit

import (
	"errors"
	"fmt"

	"github.com/banshee-data/waveform.misfit/internal/waveform"
)

// ErrUnknownMechanism is returned by TableGenerator for labels it does not hold.
var ErrUnknownMechanism = errors.New("misfit: unknown mechanism")

// Mechanism is an opaque candidate source descriptor. Only the Generator
// interprets it.
type Mechanism any

// Generator produces synthetics for a candidate mechanism, one station per
// observed station and in the same order.
type Generator interface {
	Synthetics(mech Mechanism) ([]*waveform.Station, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(mech Mechanism) ([]*waveform.Station, error)

// Synthetics calls f(mech).
func (f GeneratorFunc) Synthetics(mech Mechanism) ([]*waveform.Station, error) {
	return f(mech)
}

// TableGenerator serves precomputed synthetics keyed by mechanism label.
// Each call returns a deep copy so runtime padding never touches the table.
type TableGenerator map[string][]*waveform.Station

// Synthetics looks up mech, which must be a string label.
func (t TableGenerator) Synthetics(mech Mechanism) ([]*waveform.Station, error) {
	label, ok := mech.(string)
	if !ok {
		return nil, fmt.Errorf("%w: table lookup needs a string label, got %T", ErrUnknownMechanism, mech)
	}
	stations, ok := t[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMechanism, label)
	}
	return waveform.CloneStations(stations), nil
}

// NewTableGenerator indexes the candidates of a fixture by label.
func NewTableGenerator(candidates []waveform.Candidate) TableGenerator {
	t := make(TableGenerator, len(candidates))
	for _, c := range candidates {
		t[c.Label] = c.Synthetics
	}
	return t
}
