// Package interleave splits alternating dual-wavelength acquisitions into
// per-wavelength sequences.
package interleave

import (
	"fmt"
	"math"
	"strings"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/timebase"
)

// Parity selects which frames belong to the first channel.
type Parity int

const (
	// ParityEven assigns even indices to channel A and odd ones to B.
	ParityEven Parity = iota
	// ParityOdd assigns odd indices to channel A and even ones to B.
	ParityOdd
)

const DefaultDropTolerance = 0.5

func (p Parity) String() string {
	if p == ParityOdd {
		return "odd"
	}
	return "even"
}

// ParseParity accepts "even" or "odd".
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "even":
		return ParityEven, nil
	case "odd":
		return ParityOdd, nil
	default:
		return ParityEven, fmt.Errorf("invalid parity %q: must be 'even' or 'odd'", s)
	}
}

// Options controls deinterleaving.
type Options struct {
	Parity Parity
	// DropTolerance is how far, in units of the mean frame interval, a gap
	// may exceed one interval before it counts as a dropped pulse. The mean
	// interval is half the median A->B->A period, so unequal A->B and B->A
	// spacing is accepted.
	DropTolerance float64
}

// DefaultOptions returns even parity and the default drop tolerance.
func DefaultOptions() Options {
	return Options{Parity: ParityEven, DropTolerance: DefaultDropTolerance}
}

// IntegrityError reports a break in strict alternation.
type IntegrityError struct {
	Index    int
	Gap      float64
	Interval float64
	Missing  int
}

func (e *IntegrityError) Error() string {
	if e.Missing <= 0 {
		return fmt.Sprintf("%v: timestamps not increasing at frame %d", errs.ErrInterleaveIntegrity, e.Index)
	}
	return fmt.Sprintf("%v: gap of %.4fs before frame %d is %.1fx the mean interval (%d pulse(s) dropped)",
		errs.ErrInterleaveIntegrity, e.Gap, e.Index, e.Gap/e.Interval, e.Missing)
}

func (e *IntegrityError) Unwrap() error {
	return errs.ErrInterleaveIntegrity
}

// Deinterleave splits combined frame times into channel A and channel B.
// A dropped pulse anywhere but after the last frame makes the alternation
// untrustworthy and is reported as an *IntegrityError.
func Deinterleave(combined []float64, opts Options) ([]float64, []float64, error) {
	if err := CheckIntegrity(combined, opts.DropTolerance); err != nil {
		return nil, nil, err
	}
	a, b := Split(combined, opts.Parity)
	return a, b, nil
}

// CheckIntegrity verifies that timestamps increase strictly and that no gap
// indicates a missing pulse.
func CheckIntegrity(combined []float64, dropTolerance float64) error {
	for i := 1; i < len(combined); i++ {
		if combined[i] <= combined[i-1] {
			return &IntegrityError{Index: i}
		}
	}
	if len(combined) < 3 {
		return nil
	}

	intervals := timebase.Intervals(combined)
	periods := make([]float64, len(intervals)-1)
	for i := range periods {
		periods[i] = intervals[i] + intervals[i+1]
	}
	mean := timebase.Median(periods) / 2
	for i, gap := range intervals {
		if gap/mean-1 > dropTolerance {
			return &IntegrityError{
				Index:    i + 1,
				Gap:      gap,
				Interval: mean,
				Missing:  int(math.Round(gap/mean)) - 1,
			}
		}
	}
	return nil
}

// Split distributes items over two channels by index parity. The channel
// lengths differ by at most one.
func Split[T any](items []T, parity Parity) ([]T, []T) {
	a := make([]T, 0, (len(items)+1)/2)
	b := make([]T, 0, len(items)/2)
	for i, item := range items {
		even := i%2 == 0
		if even == (parity == ParityEven) {
			a = append(a, item)
		} else {
			b = append(b, item)
		}
	}
	return a, b
}
