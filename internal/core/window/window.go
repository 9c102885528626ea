// Package window trims time-indexed streams to an inclusion window.
package window

import (
	"fmt"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// Clip describes a window that ran past the end of a stream and was cut
// back. It is a warning, not a failure.
type Clip struct {
	Stream    string
	Requested model.InclusionWindow
	Applied   model.InclusionWindow
	Available int
}

func (c *Clip) Error() string {
	return fmt.Sprintf("%v: stream %q has %d samples, window %s clipped to %s",
		errs.ErrWindowExceedsData, c.Stream, c.Available, c.Requested, c.Applied)
}

func (c *Clip) Unwrap() error {
	return errs.ErrWindowExceedsData
}

// Resolve fits w to a stream of the given length. A window running past
// the end is clipped and reported; a window starting past the end fails.
func Resolve(name string, w model.InclusionWindow, available int) (model.InclusionWindow, *Clip, error) {
	if w.First >= available {
		return model.InclusionWindow{}, nil, fmt.Errorf("%w: stream %q has %d samples, window %s",
			errs.ErrWindowOutOfRange, name, available, w)
	}
	if w.Last < available {
		return w, nil, nil
	}
	applied := model.InclusionWindow{First: w.First, Last: available - 1}
	return applied, &Clip{Stream: name, Requested: w, Applied: applied, Available: available}, nil
}

// Apply returns the inclusive sub-range [First, Last] of values and
// timestamps. The result is a copy and never aliases the inputs.
func Apply[T any](name string, values []T, timestamps []float64, w model.InclusionWindow) (model.AlignedStream[T], *Clip, error) {
	available := len(values)
	if len(timestamps) < available {
		available = len(timestamps)
	}

	applied, clip, err := Resolve(name, w, available)
	if err != nil {
		return model.AlignedStream[T]{}, nil, err
	}

	n := applied.Len()
	out := model.AlignedStream[T]{
		Name:        name,
		Timestamps:  make([]float64, n),
		Values:      make([]T, n),
		SourceFirst: applied.First,
	}
	copy(out.Timestamps, timestamps[applied.First:applied.Last+1])
	copy(out.Values, values[applied.First:applied.Last+1])
	return out, clip, nil
}
