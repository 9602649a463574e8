package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/waveform.misfit/internal/fsutil"
	"github.com/banshee-data/waveform.misfit/internal/misfit"
	"github.com/banshee-data/waveform.misfit/internal/xcorr"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMisfitConfig(t *testing.T) {
	cfg := DefaultMisfitConfig()
	require.NoError(t, cfg.Validate())

	if cfg.NormOrder == nil || *cfg.NormOrder != 1 {
		t.Errorf("Expected NormOrder 1, got %v", cfg.NormOrder)
	}
	assert.Equal(t, []string{"ZRT"}, cfg.TimeShiftGroups)
	assert.Equal(t, xcorr.DefaultPolicy, cfg.GetPolicy())
}

func TestEmptyMisfitConfig_Getters(t *testing.T) {
	cfg := EmptyMisfitConfig()

	assert.Equal(t, 1.0, cfg.GetNormOrder())
	assert.Equal(t, 0.0, cfg.GetPolarityWeight())
	assert.Equal(t, []string{"ZRT"}, cfg.GetTimeShiftGroups())
	assert.Equal(t, 0.0, cfg.GetTimeShiftMax())
	assert.Equal(t, xcorr.DefaultPolicy, cfg.GetPolicy())
	policy := xcorr.DefaultPolicy
	assert.Equal(t, misfit.Config{
		NormOrder:       1,
		TimeShiftGroups: []string{"ZRT"},
		Policy:          &policy,
	}, cfg.Misfit())
}

func TestLoadMisfitConfig(t *testing.T) {
	path := writeConfig(t, "misfit.json", `{
  "norm_order": 2,
  "time_shift_groups": ["ZR", "T"],
  "time_shift_max": 1.5,
  "max_direct_padding": 50
}`)

	cfg, err := LoadMisfitConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.GetNormOrder())
	assert.Equal(t, 0.0, cfg.GetPolarityWeight())
	assert.Equal(t, []string{"ZR", "T"}, cfg.GetTimeShiftGroups())
	assert.Equal(t, 1.5, cfg.GetTimeShiftMax())
	assert.Equal(t, xcorr.Policy{MaxDirectSamples: 2000, MaxDirectPadding: 50}, cfg.GetPolicy())

	m, err := misfit.New(cfg.Misfit())
	require.NoError(t, err)
	assert.Len(t, m.Groups(), 2)
}

func TestLoadMisfitConfig_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong_extension", "misfit.yaml", `{}`, ".json extension"},
		{"malformed", "misfit.json", `{"norm_order":`, "parse config JSON"},
		{"zero_norm", "misfit.json", `{"norm_order": 0}`, "norm_order"},
		{"negative_shift", "misfit.json", `{"time_shift_max": -2}`, "time_shift_max"},
		{"negative_polarity", "misfit.json", `{"polarity_weight": -1}`, "polarity_weight"},
		{"empty_groups", "misfit.json", `{"time_shift_groups": []}`, "time_shift_groups"},
		{"negative_samples", "misfit.json", `{"max_direct_samples": -1}`, "max_direct_samples"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.file, tc.body)
			_, err := LoadMisfitConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMisfitConfig_Missing(t *testing.T) {
	_, err := LoadMisfitConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadMisfitConfig_TooLarge(t *testing.T) {
	body := `{"time_shift_groups": ["ZRT"], "pad": "` + strings.Repeat("x", 1024*1024) + `"}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadMisfitConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, DefaultMisfitConfig().Misfit(), cfg.Misfit())

	_, err := misfit.New(cfg.Misfit())
	assert.NoError(t, err)
}

func TestUnknownComponentRejectedByMisfit(t *testing.T) {
	path := writeConfig(t, "misfit.json", `{"time_shift_groups": ["ZRX"]}`)
	cfg, err := LoadMisfitConfig(path)
	require.NoError(t, err)

	_, err = misfit.New(cfg.Misfit())
	assert.ErrorIs(t, err, misfit.ErrUnknownComponent)
}

func TestLoadMisfitConfigFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("config/site.json", []byte(`{"time_shift_max": 2, "time_shift_groups": ["Z", "RT"]}`))

	cfg, err := LoadMisfitConfigFS(fsys, "config/site.json")
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.GetTimeShiftMax())
	assert.Equal(t, []string{"Z", "RT"}, cfg.GetTimeShiftGroups())

	_, err = LoadMisfitConfigFS(fsys, "config/absent.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadMisfitConfig_ZeroThresholdsKept(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("fft.json", []byte(`{"time_shift_max": 0.5, "max_direct_samples": 0, "max_direct_padding": 0}`))

	cfg, err := LoadMisfitConfigFS(fsys, "fft.json")
	require.NoError(t, err)
	assert.Equal(t, xcorr.Policy{}, cfg.GetPolicy())

	m, err := misfit.New(cfg.Misfit())
	require.NoError(t, err)
	got := m.Config().Policy
	require.NotNil(t, got)
	assert.Equal(t, xcorr.Policy{}, *got)
	assert.Equal(t, xcorr.FrequencyDomain, got.Select(10, 1))
}
