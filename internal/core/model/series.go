package model

// RawChannelSeries is one named behavioral or TTL signal as read from the
// acquisition card. Values are physical units.
type RawChannelSeries struct {
	Name       string    `json:"name"`
	Values     []float64 `json:"values"`
	SampleRate float64   `json:"sample_rate"`
	StartTime  float64   `json:"start_time"`
}

// TimeAt returns the time in seconds of sample i on the channel's own clock.
func (s RawChannelSeries) TimeAt(i int) float64 {
	return s.StartTime + float64(i)/s.SampleRate
}

// Duration returns the time span covered by the series.
func (s RawChannelSeries) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Values)) / s.SampleRate
}

// FindSeries returns the series called name.
func FindSeries(series []RawChannelSeries, name string) (RawChannelSeries, bool) {
	for _, s := range series {
		if s.Name == name {
			return s, true
		}
	}
	return RawChannelSeries{}, false
}

// FrameTimestampSequence holds one timestamp per imaging frame, derived from
// TTL rising edges. Timestamps are strictly increasing.
type FrameTimestampSequence struct {
	Timestamps   []float64 `json:"timestamps"`
	Rate         float64   `json:"rate"`
	RateInferred bool      `json:"rate_inferred"`
	// Outliers are indices i whose interval to frame i-1 is off the median.
	Outliers []int `json:"outliers,omitempty"`
}

// Len returns the number of frames.
func (f FrameTimestampSequence) Len() int {
	return len(f.Timestamps)
}
