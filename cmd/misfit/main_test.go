package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/waveform.misfit/internal/config"
	"github.com/banshee-data/waveform.misfit/internal/db"
	"github.com/banshee-data/waveform.misfit/internal/misfit"
	"github.com/banshee-data/waveform.misfit/internal/waveform"
)

func pulse(n, center, halfWidth int) []float64 {
	out := make([]float64, n)
	for i := range out {
		d := i - center
		if d < 0 {
			d = -d
		}
		if d < halfWidth {
			out[i] = float64(halfWidth - d)
		}
	}
	return out
}

func testFixture() *waveform.Fixture {
	obs := pulse(100, 50, 8)
	obsStation := &waveform.Station{ID: "XX.A", Records: []*waveform.Record{
		{Channel: "BHZ", Dt: 0.1, Data: obs, Weight: 1},
	}}
	candidate := func(label string, scale float64) waveform.Candidate {
		syn := make([]float64, len(obs))
		for i, v := range obs {
			syn[i] = scale * v
		}
		return waveform.Candidate{
			Label:  label,
			Params: json.RawMessage(`{"scale":` + jsonFloat(scale) + `}`),
			Synthetics: []*waveform.Station{{ID: "XX.A", Records: []*waveform.Record{
				{Channel: "BHZ", Dt: 0.1, Data: waveform.Pad(syn, 5), Weight: 1},
			}}},
		}
	}
	return &waveform.Fixture{
		Stations:   []*waveform.Station{obsStation},
		Candidates: []waveform.Candidate{candidate("half", 0.5), candidate("exact", 1), candidate("double", 2)},
	}
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestEvaluateRanksCandidates(t *testing.T) {
	cfg := misfit.DefaultConfig()
	cfg.TimeShiftMax = 0.5
	fixture := testFixture()

	results, err := evaluate(cfg, fixture)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].Label)
	assert.Equal(t, 0.0, results[0].Result.Misfit)
	assert.Equal(t, "half", results[1].Label)
	assert.Equal(t, "double", results[2].Label)
	assert.Equal(t, waveform.ModeTimeDomain, fixture.Stations[0].Mode)
}

func TestEvaluateRejectsBadConfig(t *testing.T) {
	cfg := misfit.DefaultConfig()
	cfg.TimeShiftGroups = []string{"ZRQ"}
	_, err := evaluate(cfg, testFixture())
	assert.ErrorIs(t, err, misfit.ErrUnknownComponent)
}

func TestPrintRanking(t *testing.T) {
	cfg := misfit.DefaultConfig()
	cfg.TimeShiftMax = 0.5
	results, err := evaluate(cfg, testFixture())
	require.NoError(t, err)

	var buf bytes.Buffer
	printRanking(&buf, results, 2)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "CANDIDATE")
	assert.Contains(t, lines[1], "exact")
	assert.Contains(t, lines[1], "XX.A/ZRT=+0.000")
	assert.Contains(t, lines[2], "half")
}

func TestStore(t *testing.T) {
	cfg := config.DefaultMisfitConfig()
	timeShiftMax := 0.5
	cfg.TimeShiftMax = &timeShiftMax
	results, err := evaluate(cfg.Misfit(), testFixture())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "runs.db")
	runID, err := store(path, "unit", cfg, results)
	require.NoError(t, err)

	database, err := db.Open(path)
	require.NoError(t, err)
	defer database.Close()

	runs := db.NewRunStore(database)
	run, err := runs.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "unit", run.Label)

	evals, err := runs.ListEvaluations(runID)
	require.NoError(t, err)
	require.Len(t, evals, 3)
	assert.Equal(t, "exact", evals[0].Mechanism)

	alignments, err := runs.GetAlignments(evals[0].EvaluationID)
	require.NoError(t, err)
	assert.Len(t, alignments, 1)
}
