// Package timebase derives per-frame acquisition times from TTL pulse trains
// recorded on the behavioral acquisition card.
package timebase

import (
	"fmt"
	"math"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

const (
	DefaultThreshold     = 0.5
	DefaultRateTolerance = 0.10
	DefaultGapTolerance  = 0.5
)

// Options controls edge detection and rate validation.
type Options struct {
	// Threshold is the level a sample must reach, coming from below, to
	// count as a rising edge.
	Threshold float64
	// ExpectedRate is the declared frame rate in Hz. Zero means infer it.
	ExpectedRate float64
	// RateTolerance is the allowed relative difference between the declared
	// and the measured rate.
	RateTolerance float64
	// GapTolerance is the relative deviation from the median interval above
	// which a frame interval is reported as an outlier.
	GapTolerance float64
}

// DefaultOptions returns the documented defaults with no declared rate.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		RateTolerance: DefaultRateTolerance,
		GapTolerance:  DefaultGapTolerance,
	}
}

// WithExpectedRate returns a copy of o with the declared rate set.
func (o Options) WithExpectedRate(rate float64) Options {
	o.ExpectedRate = rate
	return o
}

// MismatchError reports a declared rate that disagrees with the TTL train.
type MismatchError struct {
	Channel   string
	Expected  float64
	Measured  float64
	Tolerance float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v on channel %q: declared %.3f Hz, measured %.3f Hz (tolerance %.0f%%)",
		errs.ErrTimebaseMismatch, e.Channel, e.Expected, e.Measured, e.Tolerance*100)
}

func (e *MismatchError) Unwrap() error {
	return errs.ErrTimebaseMismatch
}

// ExtractFrameTimes detects rising edges on the named TTL channel and returns
// one timestamp per edge on the channel's own sample clock.
func ExtractFrameTimes(series []model.RawChannelSeries, channel string, opts Options) (model.FrameTimestampSequence, error) {
	s, ok := model.FindSeries(series, channel)
	if !ok {
		return model.FrameTimestampSequence{}, fmt.Errorf("%w: TTL stream %q", errs.ErrChannelNotFound, channel)
	}
	if s.SampleRate <= 0 {
		return model.FrameTimestampSequence{}, fmt.Errorf("TTL stream %q has invalid sample rate %v", channel, s.SampleRate)
	}

	edges := RisingEdges(s.Values, opts.Threshold)
	if len(edges) == 0 {
		return model.FrameTimestampSequence{}, fmt.Errorf("%w on TTL stream %q (threshold %.3g, %d samples)",
			errs.ErrNoSyncPulsesFound, channel, opts.Threshold, len(s.Values))
	}

	timestamps := make([]float64, len(edges))
	for i, idx := range edges {
		timestamps[i] = s.TimeAt(idx)
	}
	seq := model.FrameTimestampSequence{Timestamps: timestamps}

	if len(timestamps) == 1 {
		if opts.ExpectedRate > 0 {
			seq.Rate = opts.ExpectedRate
			return seq, nil
		}
		return model.FrameTimestampSequence{}, fmt.Errorf("%w: a single pulse on TTL stream %q cannot define a rate",
			errs.ErrNoSyncPulsesFound, channel)
	}

	intervals := Intervals(timestamps)
	median := Median(intervals)
	measured := 1 / median

	if opts.ExpectedRate > 0 {
		if math.Abs(measured-opts.ExpectedRate)/opts.ExpectedRate > opts.RateTolerance {
			return model.FrameTimestampSequence{}, &MismatchError{
				Channel:   channel,
				Expected:  opts.ExpectedRate,
				Measured:  measured,
				Tolerance: opts.RateTolerance,
			}
		}
		seq.Rate = opts.ExpectedRate
	} else {
		seq.Rate = measured
		seq.RateInferred = true
	}

	seq.Outliers = intervalOutliers(intervals, median, opts.GapTolerance)
	return seq, nil
}

// RisingEdges returns the sample indices where values cross threshold from
// below. The first sample is never an edge.
func RisingEdges(values []float64, threshold float64) []int {
	var edges []int
	for i := 1; i < len(values); i++ {
		if values[i-1] < threshold && values[i] >= threshold {
			edges = append(edges, i)
		}
	}
	return edges
}

// intervalOutliers returns frame indices whose preceding interval deviates
// from the median by more than tolerance.
func intervalOutliers(intervals []float64, median, tolerance float64) []int {
	if tolerance <= 0 || median <= 0 {
		return nil
	}
	var outliers []int
	for i, d := range intervals {
		if math.Abs(d-median)/median > tolerance {
			outliers = append(outliers, i+1)
		}
	}
	return outliers
}
