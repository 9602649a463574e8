package misfit

import (
	"github.com/banshee-data/waveform.misfit/internal/waveform"
)

// triangle returns an integer-valued pulse that is exactly zero outside
// (center-halfWidth, center+halfWidth).
func triangle(n, center, halfWidth int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		d := i - center
		if d < 0 {
			d = -d
		}
		if d < halfWidth {
			out[i] = amplitude * float64(halfWidth-d)
		}
	}
	return out
}

// advance returns out[i] = data[i+shift], zero where out of range.
func advance(data []float64, shift int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		j := i + shift
		if j >= 0 && j < len(data) {
			out[i] = data[j]
		}
	}
	return out
}

func record(channel string, dt float64, data []float64, weight float64) *waveform.Record {
	return &waveform.Record{Channel: channel, Dt: dt, Data: data, Weight: weight}
}

func station(id string, records ...*waveform.Record) *waveform.Station {
	return &waveform.Station{ID: id, Records: records}
}

// fixedGenerator returns deep copies of its stations for every mechanism
// and counts calls.
type fixedGenerator struct {
	stations []*waveform.Station
	calls    int
}

func (g *fixedGenerator) Synthetics(Mechanism) ([]*waveform.Station, error) {
	g.calls++
	return waveform.CloneStations(g.stations), nil
}

func mustNew(t interface {
	Helper()
	Fatalf(string, ...interface{})
}, cfg Config) *Misfit {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return m
}

func config(p, timeShiftMax float64, groups ...string) Config {
	cfg := DefaultConfig()
	cfg.NormOrder = p
	cfg.TimeShiftMax = timeShiftMax
	if len(groups) > 0 {
		cfg.TimeShiftGroups = groups
	}
	return cfg
}
