package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/waveform.misfit/internal/fsutil"
	"github.com/banshee-data/waveform.misfit/internal/misfit"
	"github.com/banshee-data/waveform.misfit/internal/xcorr"
)

// DefaultConfigPath is the path to the canonical misfit defaults file.
const DefaultConfigPath = "config/misfit.defaults.json"

// MisfitConfig is the on-disk misfit configuration. Omitted fields fall
// back to the defaults returned by the Get* methods.
type MisfitConfig struct {
	NormOrder       *float64 `json:"norm_order,omitempty"`
	PolarityWeight  *float64 `json:"polarity_weight,omitempty"`
	TimeShiftGroups []string `json:"time_shift_groups,omitempty"`
	TimeShiftMax    *float64 `json:"time_shift_max,omitempty"` // seconds

	// Correlation algorithm crossover
	MaxDirectSamples *int `json:"max_direct_samples,omitempty"`
	MaxDirectPadding *int `json:"max_direct_padding,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyMisfitConfig returns a MisfitConfig with all fields unset.
func EmptyMisfitConfig() *MisfitConfig {
	return &MisfitConfig{}
}

// DefaultMisfitConfig returns a MisfitConfig with every field populated
// with its default.
func DefaultMisfitConfig() *MisfitConfig {
	return &MisfitConfig{
		NormOrder:        ptrFloat64(1),
		PolarityWeight:   ptrFloat64(0),
		TimeShiftGroups:  []string{"ZRT"},
		TimeShiftMax:     ptrFloat64(0),
		MaxDirectSamples: ptrInt(xcorr.DefaultPolicy.MaxDirectSamples),
		MaxDirectPadding: ptrInt(xcorr.DefaultPolicy.MaxDirectPadding),
	}
}

// LoadMisfitConfig loads a MisfitConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadMisfitConfig(path string) (*MisfitConfig, error) {
	return LoadMisfitConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadMisfitConfigFS is LoadMisfitConfig reading from fsys.
func LoadMisfitConfigFS(fsys fsutil.FileSystem, path string) (*MisfitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMisfitConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *MisfitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadMisfitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Component and group checks are
// left to misfit.New so there is a single source of truth for them.
func (c *MisfitConfig) Validate() error {
	if c.NormOrder != nil {
		if v := *c.NormOrder; math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("norm_order must be positive, got %v", v)
		}
	}
	if c.PolarityWeight != nil && !(*c.PolarityWeight >= 0) {
		return fmt.Errorf("polarity_weight must be non-negative, got %v", *c.PolarityWeight)
	}
	if c.TimeShiftMax != nil && !(*c.TimeShiftMax >= 0) {
		return fmt.Errorf("time_shift_max must be non-negative, got %v", *c.TimeShiftMax)
	}
	if c.TimeShiftGroups != nil && len(c.TimeShiftGroups) == 0 {
		return fmt.Errorf("time_shift_groups must not be empty when set")
	}
	if c.MaxDirectSamples != nil && *c.MaxDirectSamples < 0 {
		return fmt.Errorf("max_direct_samples must be non-negative, got %d", *c.MaxDirectSamples)
	}
	if c.MaxDirectPadding != nil && *c.MaxDirectPadding < 0 {
		return fmt.Errorf("max_direct_padding must be non-negative, got %d", *c.MaxDirectPadding)
	}
	return nil
}

// GetNormOrder returns the norm_order value or the default.
func (c *MisfitConfig) GetNormOrder() float64 {
	if c.NormOrder == nil {
		return 1
	}
	return *c.NormOrder
}

// GetPolarityWeight returns the polarity_weight value or the default.
func (c *MisfitConfig) GetPolarityWeight() float64 {
	if c.PolarityWeight == nil {
		return 0
	}
	return *c.PolarityWeight
}

// GetTimeShiftGroups returns the time_shift_groups value or the default.
func (c *MisfitConfig) GetTimeShiftGroups() []string {
	if len(c.TimeShiftGroups) == 0 {
		return []string{"ZRT"}
	}
	return append([]string(nil), c.TimeShiftGroups...)
}

// GetTimeShiftMax returns the time_shift_max value or the default.
func (c *MisfitConfig) GetTimeShiftMax() float64 {
	if c.TimeShiftMax == nil {
		return 0
	}
	return *c.TimeShiftMax
}

// GetPolicy returns the correlation crossover thresholds.
func (c *MisfitConfig) GetPolicy() xcorr.Policy {
	p := xcorr.DefaultPolicy
	if c.MaxDirectSamples != nil {
		p.MaxDirectSamples = *c.MaxDirectSamples
	}
	if c.MaxDirectPadding != nil {
		p.MaxDirectPadding = *c.MaxDirectPadding
	}
	return p
}

// Misfit converts the file configuration into misfit parameters.
func (c *MisfitConfig) Misfit() misfit.Config {
	policy := c.GetPolicy()
	return misfit.Config{
		NormOrder:       c.GetNormOrder(),
		PolarityWeight:  c.GetPolarityWeight(),
		TimeShiftGroups: c.GetTimeShiftGroups(),
		TimeShiftMax:    c.GetTimeShiftMax(),
		Policy:          &policy,
	}
}
