package model

// Frame is one imaging frame in row-major order.
type Frame []uint16

// FrameShape is the pixel geometry of a movie.
type FrameShape struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// AlignedStream is a windowed (timestamps, values) pair. Timestamps are a
// contiguous run of the channel's full sequence starting at SourceFirst.
type AlignedStream[T any] struct {
	Name        string    `json:"name"`
	Timestamps  []float64 `json:"timestamps"`
	Values      []T       `json:"values"`
	SourceFirst int       `json:"source_first"`
}

// Len returns the number of samples.
func (s AlignedStream[T]) Len() int {
	return len(s.Values)
}

// Start returns the first timestamp, or 0 for an empty stream.
func (s AlignedStream[T]) Start() float64 {
	if len(s.Timestamps) == 0 {
		return 0
	}
	return s.Timestamps[0]
}

// Stop returns the last timestamp, or 0 for an empty stream.
func (s AlignedStream[T]) Stop() float64 {
	if len(s.Timestamps) == 0 {
		return 0
	}
	return s.Timestamps[len(s.Timestamps)-1]
}
