package misfit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/waveform.misfit/internal/waveform"
	"github.com/banshee-data/waveform.misfit/internal/xcorr"
)

// Configuration errors, returned by New.
var (
	ErrInvalidConfig     = errors.New("misfit: invalid configuration")
	ErrUnknownComponent  = errors.New("misfit: unknown component in time-shift group")
	ErrOverlappingGroups = errors.New("misfit: component claimed by more than one time-shift group")
	ErrEmptyGroup        = errors.New("misfit: empty time-shift group")
)

// Config holds the misfit parameters.
type Config struct {
	// NormOrder is the exponent p of the residual norm.
	NormOrder float64 `json:"norm_order"`

	// PolarityWeight scales a first-motion polarity term. Nonzero values are
	// accepted here but rejected by Evaluate.
	PolarityWeight float64 `json:"polarity_weight"`

	// TimeShiftGroups lists components that share one time shift:
	// ["ZRT"] locks all three, ["ZR", "T"] lets transverse float freely,
	// ["Z", "R", "T"] shifts every component independently.
	TimeShiftGroups []string `json:"time_shift_groups"`

	// TimeShiftMax is the largest allowed lag correction in seconds.
	TimeShiftMax float64 `json:"time_shift_max"`

	// Policy chooses between time- and frequency-domain correlation.
	// Nil means xcorr.DefaultPolicy.
	Policy *xcorr.Policy `json:"correlation,omitempty"`
}

// DefaultConfig returns an L1 misfit with all components locked together
// and no time-shift correction.
func DefaultConfig() Config {
	policy := xcorr.DefaultPolicy
	return Config{
		NormOrder:       1,
		TimeShiftGroups: []string{"ZRT"},
		Policy:          &policy,
	}
}

// Group is a validated set of components sharing one time shift.
type Group struct {
	Name       string
	Components []waveform.Component
}

// Contains reports whether c belongs to g.
func (g Group) Contains(c waveform.Component) bool {
	for _, gc := range g.Components {
		if gc == c {
			return true
		}
	}
	return false
}

// parseGroups validates the configured groups as a partition of (a subset
// of) the component alphabet.
func parseGroups(names []string) ([]Group, error) {
	owner := make(map[waveform.Component]string)
	groups := make([]Group, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, ErrEmptyGroup
		}
		g := Group{Name: strings.ToUpper(name)}
		for _, r := range name {
			c, err := waveform.ParseComponent(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %q in group %q", ErrUnknownComponent, r, name)
			}
			if prev, ok := owner[c]; ok {
				return nil, fmt.Errorf("%w: %s in %q and %q", ErrOverlappingGroups, c, prev, name)
			}
			owner[c] = name
			g.Components = append(g.Components, c)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (c Config) validate() error {
	if math.IsNaN(c.NormOrder) || math.IsInf(c.NormOrder, 0) || c.NormOrder <= 0 {
		return fmt.Errorf("%w: norm_order must be positive, got %v", ErrInvalidConfig, c.NormOrder)
	}
	if math.IsNaN(c.TimeShiftMax) || math.IsInf(c.TimeShiftMax, 0) || c.TimeShiftMax < 0 {
		return fmt.Errorf("%w: time_shift_max must be non-negative, got %v", ErrInvalidConfig, c.TimeShiftMax)
	}
	if math.IsNaN(c.PolarityWeight) || math.IsInf(c.PolarityWeight, 0) || c.PolarityWeight < 0 {
		return fmt.Errorf("%w: polarity_weight must be non-negative, got %v", ErrInvalidConfig, c.PolarityWeight)
	}
	if c.Policy != nil && (c.Policy.MaxDirectSamples < 0 || c.Policy.MaxDirectPadding < 0) {
		return fmt.Errorf("%w: correlation thresholds must be non-negative", ErrInvalidConfig)
	}
	return nil
}
