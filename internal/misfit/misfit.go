// Package misfit evaluates a CAP-style waveform misfit between observed and
// synthetic seismograms.
//
// For every station the synthetics are cross-correlated with the data over
// ±time_shift_max, one lag per time-shift group is chosen, and the aligned
// residuals are summed as a weighted Lp norm across all stations:
//
//	misfit = ( Σ_records weight · dt · Σ_i |s[start+i] - d[i]|^p )^(1/p)
//
// Evaluate writes the chosen alignment onto the observed records (and mirrors
// it onto the synthetics) and also returns it explicitly in Result.
package misfit

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/waveform.misfit/internal/monitoring"
	"github.com/banshee-data/waveform.misfit/internal/waveform"
	"github.com/banshee-data/waveform.misfit/internal/xcorr"
)

// Evaluation errors.
var (
	ErrDataShape              = errors.New("misfit: data and synthetics have incompatible shapes")
	ErrModeConflict           = errors.New("misfit: station time-shift mode conflicts with padding")
	ErrPolarityNotImplemented = errors.New("misfit: polarity misfit is not implemented")
)

// Misfit is a configured misfit function. It is safe for concurrent use as
// long as concurrent calls do not share Station values.
type Misfit struct {
	order          float64
	polarityWeight float64
	timeShiftMax   float64
	groups         []Group
	policy         xcorr.Policy

	padWarning sync.Once
}

// New validates cfg and returns a misfit function.
func New(cfg Config) (*Misfit, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.TimeShiftGroups) == 0 {
		return nil, fmt.Errorf("%w: at least one time-shift group is required", ErrInvalidConfig)
	}
	groups, err := parseGroups(cfg.TimeShiftGroups)
	if err != nil {
		return nil, err
	}
	policy := xcorr.DefaultPolicy
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	return &Misfit{
		order:          cfg.NormOrder,
		polarityWeight: cfg.PolarityWeight,
		timeShiftMax:   cfg.TimeShiftMax,
		groups:         groups,
		policy:         policy,
	}, nil
}

// Config returns the configuration m was built from.
func (m *Misfit) Config() Config {
	names := make([]string, len(m.groups))
	for i, g := range m.groups {
		names[i] = g.Name
	}
	policy := m.policy
	return Config{
		NormOrder:       m.order,
		PolarityWeight:  m.polarityWeight,
		TimeShiftGroups: names,
		TimeShiftMax:    m.timeShiftMax,
		Policy:          &policy,
	}
}

// Groups returns the validated time-shift groups in configured order.
func (m *Misfit) Groups() []Group {
	return append([]Group(nil), m.groups...)
}

// Alignment is the time-shift correction and residual chosen for one record.
type Alignment struct {
	Station        string             `json:"station"`
	Channel        string             `json:"channel"`
	Component      waveform.Component `json:"component"`
	TimeShiftGroup string             `json:"time_shift_group"`
	TimeShift      float64            `json:"time_shift"`
	Start          int                `json:"start"`
	Stop           int                `json:"stop"`
	SumResiduals   float64            `json:"sum_residuals"`
	Weight         float64            `json:"weight"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Misfit     float64     `json:"misfit"`
	Alignments []Alignment `json:"alignments"`
}

// stationPlan is the validated geometry of one station pair.
type stationPlan struct {
	data       *waveform.Station
	syn        *waveform.Station
	npts       int
	dt         float64
	padding    int
	runtimePad bool
}

// Evaluate computes the misfit of mech against data. The synthetics are
// generated once and must correspond station by station with data.
//
// Either every station is evaluated or an error is returned; shape errors
// are detected before any record is annotated.
func (m *Misfit) Evaluate(data []*waveform.Station, gen Generator, mech Mechanism) (*Result, error) {
	if m.polarityWeight > 0 {
		return nil, ErrPolarityNotImplemented
	}
	if gen == nil {
		return nil, fmt.Errorf("misfit: nil synthetics generator")
	}

	synthetics, err := gen.Synthetics(mech)
	if err != nil {
		return nil, fmt.Errorf("generate synthetics: %w", err)
	}
	if len(synthetics) != len(data) {
		return nil, fmt.Errorf("%w: %d observed stations, %d synthetic stations",
			ErrDataShape, len(data), len(synthetics))
	}

	plans := make([]stationPlan, len(data))
	for i := range data {
		plan, err := m.prepare(data[i], synthetics[i])
		if err != nil {
			return nil, err
		}
		plans[i] = plan
	}

	res := &Result{}
	var total float64
	for _, p := range plans {
		if p.runtimePad {
			m.padWarning.Do(func() {
				monitoring.Warnf("synthetics for station %s padded at runtime; for greater speed pad synthetics in advance by time_shift_max (%g s)",
					p.data.ID, m.timeShiftMax)
			})
			waveform.PadStation(p.syn, p.padding)
		}
		if p.data.Mode == waveform.ModeUndecided {
			p.data.Mode = m.decideMode(p.npts, p.padding)
		}
		sum, err := m.evaluateStation(p, res)
		if err != nil {
			return nil, err
		}
		total += sum
	}

	res.Misfit = math.Pow(total, 1/m.order)
	return res, nil
}

// prepare checks one station pair without modifying either side.
func (m *Misfit) prepare(d, s *waveform.Station) (stationPlan, error) {
	if d == nil || s == nil {
		return stationPlan{}, fmt.Errorf("%w: nil station", ErrDataShape)
	}
	if len(d.Records) == 0 {
		return stationPlan{}, fmt.Errorf("%w: station %s has no records", ErrDataShape, d.ID)
	}
	if len(s.Records) != len(d.Records) {
		return stationPlan{}, fmt.Errorf("%w: station %s has %d observed and %d synthetic records",
			ErrDataShape, d.ID, len(d.Records), len(s.Records))
	}

	p := stationPlan{data: d, syn: s, npts: d.Npts(), dt: d.Dt()}
	if p.npts == 0 {
		return stationPlan{}, fmt.Errorf("%w: station %s has empty records", ErrDataShape, d.ID)
	}
	if !(p.dt > 0) || math.IsInf(p.dt, 0) {
		return stationPlan{}, fmt.Errorf("%w: station %s has sampling interval %v", ErrDataShape, d.ID, p.dt)
	}
	for _, r := range d.Records {
		if r.Npts() != p.npts {
			return stationPlan{}, fmt.Errorf("%w: station %s channel %s has %d samples, want %d",
				ErrDataShape, d.ID, r.Channel, r.Npts(), p.npts)
		}
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) || r.Weight < 0 {
			return stationPlan{}, fmt.Errorf("%w: station %s channel %s has weight %v",
				ErrDataShape, d.ID, r.Channel, r.Weight)
		}
	}

	p.padding = waveform.PaddingSamples(m.timeShiftMax, p.dt)
	nsyn := s.Npts()
	switch {
	case nsyn-p.npts == 2*p.padding:
	case nsyn == p.npts:
		p.runtimePad = true
	default:
		return stationPlan{}, fmt.Errorf("%w: station %s has %d data samples and %d synthetic samples; "+
			"synthetics must match the data or be padded by 2*time_shift_max/dt = %d samples",
			ErrDataShape, d.ID, p.npts, nsyn, 2*p.padding)
	}
	for _, r := range s.Records {
		if r.Npts() != nsyn {
			return stationPlan{}, fmt.Errorf("%w: station %s synthetic channel %s has %d samples, want %d",
				ErrDataShape, d.ID, r.Channel, r.Npts(), nsyn)
		}
	}

	if d.Mode == waveform.ModeNoShift && p.padding > 0 {
		return stationPlan{}, fmt.Errorf("%w: station %s was first evaluated without time shifts, now needs %d samples of padding",
			ErrModeConflict, d.ID, p.padding)
	}
	return p, nil
}

// decideMode picks the time-shift computation mode from the data geometry.
func (m *Misfit) decideMode(npts, padding int) waveform.ShiftMode {
	if padding == 0 {
		return waveform.ModeNoShift
	}
	if m.policy.Select(npts, padding) == xcorr.FrequencyDomain {
		return waveform.ModeFrequencyDomain
	}
	return waveform.ModeTimeDomain
}

func strategyFor(mode waveform.ShiftMode) xcorr.Strategy {
	if mode == waveform.ModeFrequencyDomain {
		return xcorr.FrequencyDomain
	}
	return xcorr.TimeDomain
}

// evaluateStation runs the grouped lag search for one station, annotates
// its records, appends to res and returns the weighted residual sum.
func (m *Misfit) evaluateStation(p stationPlan, res *Result) (float64, error) {
	d, s := p.data, p.syn
	strategy := strategyFor(d.Mode)

	var total float64
	for _, g := range m.groups {
		profile := make([]float64, 2*p.padding+1)
		var members []int
		for i, r := range d.Records {
			if !g.Contains(r.Component()) {
				continue
			}
			members = append(members, i)
			// Zero-weight records take the group's lag but do not steer it.
			if r.Weight == 0 || d.Mode == waveform.ModeNoShift {
				continue
			}
			cc, err := strategy.Correlate(r.Data, s.Records[i].Data)
			if err != nil {
				return 0, fmt.Errorf("station %s channel %s: %w", d.ID, r.Channel, err)
			}
			floats.Add(profile, cc)
		}
		if len(members) == 0 {
			continue
		}

		// MaxIdx returns the first maximum, so ties resolve to the smallest lag index.
		argmax := floats.MaxIdx(profile)
		timeShift := float64(argmax-p.padding) * p.dt
		start := 2*p.padding - argmax
		stop := start + p.npts

		for _, i := range members {
			r, sr := d.Records[i], s.Records[i]
			sum := sumResiduals(sr.Data[start:stop], r.Data, m.order) * p.dt

			r.TimeShift, sr.TimeShift = timeShift, timeShift
			r.TimeShiftGroup, sr.TimeShiftGroup = g.Name, g.Name
			r.Start, sr.Start = start, start
			r.Stop, sr.Stop = stop, stop
			r.SumResiduals, sr.SumResiduals = sum, sum

			total += r.Weight * sum
			res.Alignments = append(res.Alignments, Alignment{
				Station:        d.ID,
				Channel:        r.Channel,
				Component:      r.Component(),
				TimeShiftGroup: g.Name,
				TimeShift:      timeShift,
				Start:          start,
				Stop:           stop,
				SumResiduals:   sum,
				Weight:         r.Weight,
			})
		}
	}
	return total, nil
}

// sumResiduals returns Σ|syn[i]-obs[i]|^p.
func sumResiduals(syn, obs []float64, p float64) float64 {
	var sum float64
	switch p {
	case 1:
		for i, v := range obs {
			sum += math.Abs(syn[i] - v)
		}
	case 2:
		for i, v := range obs {
			r := syn[i] - v
			sum += r * r
		}
	default:
		for i, v := range obs {
			sum += math.Pow(math.Abs(syn[i]-v), p)
		}
	}
	return sum
}
