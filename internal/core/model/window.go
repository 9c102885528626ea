package model

import (
	"fmt"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
)

// InclusionWindow is the inclusive, zero-based range of valid frames for one
// channel. Construct it with NewInclusionWindow or FromOneBased.
type InclusionWindow struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// NewInclusionWindow validates 0 <= first <= last.
func NewInclusionWindow(first, last int) (InclusionWindow, error) {
	if first < 0 {
		return InclusionWindow{}, fmt.Errorf("%w: first index %d is negative", errs.ErrInvalidWindow, first)
	}
	if first > last {
		return InclusionWindow{}, fmt.Errorf("%w: first index %d > last index %d", errs.ErrInvalidWindow, first, last)
	}
	return InclusionWindow{First: first, Last: last}, nil
}

// FullWindow covers every frame of a stream of length n.
func FullWindow(n int) (InclusionWindow, error) {
	if n <= 0 {
		return InclusionWindow{}, fmt.Errorf("%w: empty stream", errs.ErrInvalidWindow)
	}
	return InclusionWindow{First: 0, Last: n - 1}, nil
}

// FromOneBased converts the [first, last] pair stored by the processing
// scripts (1-based, inclusive) into a zero-based window.
func FromOneBased(pair []float64) (InclusionWindow, error) {
	if len(pair) != 2 {
		return InclusionWindow{}, fmt.Errorf("%w: expected 2 indices, got %d", errs.ErrInvalidWindow, len(pair))
	}
	for _, v := range pair {
		if v != float64(int(v)) {
			return InclusionWindow{}, fmt.Errorf("%w: index %v is not an integer", errs.ErrInvalidWindow, v)
		}
	}
	return NewInclusionWindow(int(pair[0])-1, int(pair[1])-1)
}

// Len is the number of frames in the window.
func (w InclusionWindow) Len() int {
	return w.Last - w.First + 1
}

// Truncate keeps at most n frames from the start of the window.
func (w InclusionWindow) Truncate(n int) InclusionWindow {
	if n <= 0 || w.Len() <= n {
		return w
	}
	return InclusionWindow{First: w.First, Last: w.First + n - 1}
}

func (w InclusionWindow) String() string {
	return fmt.Sprintf("[%d, %d]", w.First, w.Last)
}
