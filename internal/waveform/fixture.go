package waveform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/waveform.misfit/internal/fsutil"
)

// Candidate is one source mechanism together with its precomputed synthetics.
type Candidate struct {
	Label      string          `json:"label"`
	Params     json.RawMessage `json:"params,omitempty"`
	Synthetics []*Station      `json:"synthetics"`
}

// Fixture bundles observed stations with candidate synthetics. It is the
// on-disk exchange format between the synthetics generator and cmd/misfit.
type Fixture struct {
	Stations   []*Station  `json:"stations"`
	Candidates []Candidate `json:"candidates"`
}

// ReadFixture decodes a fixture and checks that every candidate carries one
// synthetic station per observed station.
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture JSON: %w", err)
	}
	if len(f.Stations) == 0 {
		return nil, fmt.Errorf("fixture has no stations")
	}
	seen := make(map[string]bool, len(f.Candidates))
	for i, c := range f.Candidates {
		if c.Label == "" {
			return nil, fmt.Errorf("candidate %d has no label", i)
		}
		if seen[c.Label] {
			return nil, fmt.Errorf("duplicate candidate label %q", c.Label)
		}
		seen[c.Label] = true
		if len(c.Synthetics) != len(f.Stations) {
			return nil, fmt.Errorf("candidate %q has %d synthetic stations, want %d",
				c.Label, len(c.Synthetics), len(f.Stations))
		}
	}
	return &f, nil
}

// LoadFixture reads a fixture from a .json file.
func LoadFixture(path string) (*Fixture, error) {
	return LoadFixtureFS(fsutil.OSFileSystem{}, path)
}

// LoadFixtureFS reads a fixture from a .json file on fsys.
func LoadFixtureFS(fsys fsutil.FileSystem, path string) (*Fixture, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("fixture file must have .json extension, got %q", ext)
	}
	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	return ReadFixture(bytes.NewReader(data))
}

// WriteFixture encodes f as indented JSON.
func WriteFixture(w io.Writer, f *Fixture) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}
