package assembler

import (
	"fmt"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/interleave"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/core/timebase"
	"github.com/penwyp/go-photometry-sync/internal/data/processed"
)

// FrameSource gives windowed access to one channel's raw imaging frames.
type FrameSource interface {
	// Len is the number of frames available to the channel.
	Len() int
	Shape() model.FrameShape
	// ReadFrames returns frames first..last inclusive.
	ReadFrames(first, last int) ([]model.Frame, error)
}

// ChannelInput is everything known about one wavelength channel before
// alignment.
type ChannelInput struct {
	Channel   model.WavelengthChannel
	TTLStream string
	Processed processed.Resolved
	// Frames is optional; without it no imaging stream is produced.
	Frames FrameSource
	// RawBehavior names channels of the TTL recording to resample at the
	// channel's frame times.
	RawBehavior []string
}

// Inputs is the complete input of one assembly.
type Inputs struct {
	SubjectID        string
	SessionID        string
	SessionStartTime time.Time
	TTL              []model.RawChannelSeries
	Channels         []ChannelInput
	Fibers           []model.FiberLocation
	Subject          *model.SubjectMetadata
	Metadata         map[string]any
}

// Options tunes alignment.
type Options struct {
	// Timebase.ExpectedRate is the per-channel frame rate.
	Timebase   timebase.Options
	Interleave interleave.Options
	// MinOverlapFrames is the number of frames each channel must have
	// inside the shared time range. Zero accepts any non-empty overlap.
	MinOverlapFrames int
	// StubFrames keeps only the first frames of every window when positive.
	StubFrames int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Timebase:   timebase.DefaultOptions(),
		Interleave: interleave.DefaultOptions(),
	}
}

func (in Inputs) validate() error {
	switch len(in.Channels) {
	case 1, 2:
	default:
		return fmt.Errorf("a session needs one or two wavelength channels, got %d", len(in.Channels))
	}
	if len(in.TTL) == 0 {
		return fmt.Errorf("no TTL series supplied")
	}
	for i, ch := range in.Channels {
		if ch.TTLStream == "" {
			return fmt.Errorf("channel %d (%s) has no TTL stream", i, ch.Channel)
		}
		if _, err := ch.Channel.SeriesSuffix(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	if len(in.Channels) == 2 {
		a, b := in.Channels[0].Channel, in.Channels[1].Channel
		if a.ResponseSeriesName() == b.ResponseSeriesName() {
			return fmt.Errorf("%d nm and %d nm excitation both map to %s", a.WavelengthNM, b.WavelengthNM, a.ResponseSeriesName())
		}
	}
	return nil
}
