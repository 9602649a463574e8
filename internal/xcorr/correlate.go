// Package xcorr computes lag-correlation profiles between an unpadded
// reference trace and a padded trace.
//
// Two numerically equivalent algorithms are provided. TimeDomain sums the
// products directly and has the lowest overhead for short traces and short
// lag ranges. FrequencyDomain multiplies real FFT spectra and wins for long
// traces or long lag ranges. Policy decides between them.
package xcorr

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when the reference is empty or longer than the
// padded trace.
var ErrShape = errors.New("xcorr: invalid input lengths")

// Strategy selects the correlation algorithm.
type Strategy int

const (
	// TimeDomain correlates by direct summation.
	TimeDomain Strategy = iota + 1
	// FrequencyDomain correlates by FFT convolution with the reversed
	// padded trace.
	FrequencyDomain
)

func (s Strategy) String() string {
	switch s {
	case TimeDomain:
		return "time-domain"
	case FrequencyDomain:
		return "frequency-domain"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Policy holds the size thresholds above which FrequencyDomain is used.
type Policy struct {
	// MaxDirectSamples is the longest reference trace correlated directly.
	MaxDirectSamples int `json:"max_direct_samples"`
	// MaxDirectPadding is the largest one-sided padding (in samples)
	// correlated directly.
	MaxDirectPadding int `json:"max_direct_padding"`
}

// DefaultPolicy matches the crossover points measured for typical
// regional seismograms.
var DefaultPolicy = Policy{
	MaxDirectSamples: 2000,
	MaxDirectPadding: 200,
}

// Select returns the strategy for a reference of nRef samples searched over
// ±padding samples of lag. A zero threshold sends every non-empty input
// to FrequencyDomain.
func (p Policy) Select(nRef, padding int) Strategy {
	if nRef > p.MaxDirectSamples || padding > p.MaxDirectPadding {
		return FrequencyDomain
	}
	return TimeDomain
}

// Correlate returns the lag-correlation profile of ref against padded using
// the algorithm chosen by DefaultPolicy.
//
// The profile has len(padded)-len(ref)+1 entries with
//
//	out[k] = Σ_m ref[m] · padded[m + len(padded) - len(ref) - k]
//
// so index k corresponds to shifting padded by k - (len(padded)-len(ref))/2
// samples relative to a centred alignment.
func Correlate(ref, padded []float64) ([]float64, error) {
	return DefaultPolicy.Select(len(ref), (len(padded)-len(ref))/2).Correlate(ref, padded)
}

// Correlate computes the lag-correlation profile with strategy s.
func (s Strategy) Correlate(ref, padded []float64) ([]float64, error) {
	n1, n2 := len(ref), len(padded)
	if n1 == 0 || n2 < n1 {
		return nil, fmt.Errorf("%w: reference %d samples, padded %d samples", ErrShape, n1, n2)
	}
	switch s {
	case TimeDomain:
		return direct(ref, padded), nil
	case FrequencyDomain:
		return spectral(ref, padded), nil
	default:
		return nil, fmt.Errorf("xcorr: unknown strategy %v", s)
	}
}

func direct(ref, padded []float64) []float64 {
	lags := len(padded) - len(ref)
	out := make([]float64, lags+1)
	for k := range out {
		out[k] = floats.Dot(ref, padded[lags-k:lags-k+len(ref)])
	}
	return out
}

func spectral(ref, padded []float64) []float64 {
	n1, n2 := len(ref), len(padded)
	n := fastLength(n1 + n2 - 1)
	fft := fourier.NewFFT(n)

	a := make([]float64, n)
	copy(a, ref)
	b := make([]float64, n)
	for i, v := range padded {
		b[n2-1-i] = v
	}

	ca := fft.Coefficients(nil, a)
	cb := fft.Coefficients(nil, b)
	for i := range ca {
		ca[i] *= cb[i]
	}
	full := fft.Sequence(nil, ca)
	floats.Scale(1/float64(n), full)

	// Keep the "valid" part of the full linear convolution.
	out := make([]float64, n2-n1+1)
	copy(out, full[n1-1:n2])
	return out
}

// fastLength returns the smallest power of two that is at least n.
func fastLength(n int) int {
	l := 1
	for l < n {
		l <<= 1
	}
	return l
}
