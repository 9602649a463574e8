// Package waveform holds the single-component seismic records and the
// per-station record sets consumed by the misfit evaluator.
package waveform

import (
	"fmt"
	"strings"
	"unicode"
)

// Component is a single-letter component code.
type Component byte

const (
	Vertical   Component = 'Z'
	Radial     Component = 'R'
	Transverse Component = 'T'
)

// Components lists the fixed component alphabet in canonical order.
var Components = []Component{Vertical, Radial, Transverse}

func (c Component) String() string { return string(rune(c)) }

// ParseComponent upper-cases r and checks it against Components.
func ParseComponent(r rune) (Component, error) {
	up := unicode.ToUpper(r)
	for _, c := range Components {
		if rune(c) == up {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown component %q", r)
}

// Record is one component of one station. Data, Dt and Weight are inputs;
// the remaining fields are written by the misfit evaluator.
type Record struct {
	Channel string    `json:"channel"`
	Dt      float64   `json:"dt"`
	Data    []float64 `json:"data"`
	Weight  float64   `json:"weight"`

	TimeShift      float64 `json:"time_shift"`
	TimeShiftGroup string  `json:"time_shift_group,omitempty"`
	Start          int     `json:"start"`
	Stop           int     `json:"stop"`
	SumResiduals   float64 `json:"sum_residuals"`
}

// Component returns the upper-cased last character of the channel code, or
// zero when the channel is empty.
func (r *Record) Component() Component {
	if r.Channel == "" {
		return 0
	}
	return Component(strings.ToUpper(r.Channel[len(r.Channel)-1:])[0])
}

// Npts returns the number of samples.
func (r *Record) Npts() int { return len(r.Data) }

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = append([]float64(nil), r.Data...)
	return &c
}

// ShiftMode is the cached time-shift computation mode of a station.
type ShiftMode int

const (
	ModeUndecided ShiftMode = iota
	ModeNoShift
	ModeTimeDomain
	ModeFrequencyDomain
)

func (m ShiftMode) String() string {
	switch m {
	case ModeUndecided:
		return "undecided"
	case ModeNoShift:
		return "no-shift"
	case ModeTimeDomain:
		return "time-domain"
	case ModeFrequencyDomain:
		return "frequency-domain"
	default:
		return fmt.Sprintf("ShiftMode(%d)", int(m))
	}
}

// Station is an ordered set of records sharing one station and one sample
// count. Mode is decided on the first evaluation and reused afterwards, so
// parallel workers must each hold their own copy (see Clone).
type Station struct {
	ID      string    `json:"id"`
	Records []*Record `json:"records"`
	Mode    ShiftMode `json:"-"`
}

// Npts returns the sample count of the first record.
func (s *Station) Npts() int {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[0].Npts()
}

// Dt returns the sampling interval of the first record.
func (s *Station) Dt() float64 {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[0].Dt
}

// Clone returns a deep copy of s, including its cached mode.
func (s *Station) Clone() *Station {
	c := &Station{ID: s.ID, Mode: s.Mode, Records: make([]*Record, len(s.Records))}
	for i, r := range s.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

// CloneStations deep-copies a station list.
func CloneStations(stations []*Station) []*Station {
	out := make([]*Station, len(stations))
	for i, s := range stations {
		if s != nil {
			out[i] = s.Clone()
		}
	}
	return out
}

// MarshalText encodes c as its letter.
func (c Component) MarshalText() ([]byte, error) {
	if c == 0 {
		return []byte{}, nil
	}
	return []byte{byte(c)}, nil
}

// UnmarshalText decodes a single-letter component code.
func (c *Component) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = 0
		return nil
	}
	if len(b) != 1 {
		return fmt.Errorf("unknown component %q", b)
	}
	v, err := ParseComponent(rune(b[0]))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
