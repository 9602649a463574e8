package waveform

import "math"

// PaddingSamples converts a maximum time shift in seconds to a one-sided
// padding length in samples. Halfway cases round to even.
func PaddingSamples(timeShiftMax, dt float64) int {
	if dt <= 0 {
		return 0
	}
	return int(math.RoundToEven(timeShiftMax / dt))
}

// Pad returns a copy of data with n zero samples prepended and appended.
func Pad(data []float64, n int) []float64 {
	if n <= 0 {
		return append([]float64(nil), data...)
	}
	out := make([]float64, len(data)+2*n)
	copy(out[n:], data)
	return out
}

// PadStation zero-pads every record of s by n samples on each side.
func PadStation(s *Station, n int) {
	for _, r := range s.Records {
		r.Data = Pad(r.Data, n)
	}
}
