package timebase

import (
	"fmt"
	"math"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// SampleAt resamples a high-rate channel at the given frame times using the
// last sample at or before each time. Times outside the recording are
// clamped to the first or last sample.
func SampleAt(s model.RawChannelSeries, times []float64) ([]float64, error) {
	if len(s.Values) == 0 {
		return nil, fmt.Errorf("channel %q has no samples", s.Name)
	}
	if s.SampleRate <= 0 {
		return nil, fmt.Errorf("channel %q has invalid sample rate %v", s.Name, s.SampleRate)
	}

	out := make([]float64, len(times))
	last := len(s.Values) - 1
	for i, t := range times {
		// The epsilon absorbs rounding when t falls exactly on a sample.
		idx := int(math.Floor((t-s.StartTime)*s.SampleRate + 1e-9))
		if idx < 0 {
			idx = 0
		} else if idx > last {
			idx = last
		}
		out[i] = s.Values[idx]
	}
	return out, nil
}
