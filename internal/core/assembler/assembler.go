// Package assembler aligns every stream of a session onto the TTL-derived
// frame clock and produces the immutable session record.
package assembler

import (
	"fmt"
	"sort"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/interleave"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/core/timebase"
	"github.com/penwyp/go-photometry-sync/internal/core/window"
	"github.com/penwyp/go-photometry-sync/internal/data/metadata"
)

// Assemble builds the session record. The same inputs always produce a
// deeply equal record.
func Assemble(in Inputs, opts Options) (*model.SessionRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sequences, err := frameTimes(in, opts)
	if err != nil {
		return nil, err
	}

	var warnings []string
	channels := make([]model.ChannelRecord, len(in.Channels))
	for i, ch := range in.Channels {
		rec, chWarnings, err := alignChannel(ch, sequences[i], in.TTL, opts)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Channel, err)
		}
		rec.AcceptedFibers = acceptedFibers(in.Fibers)
		channels[i] = rec
		warnings = append(warnings, chWarnings...)
	}

	start, stop, err := sharedRange(channels, opts.MinOverlapFrames)
	if err != nil {
		return nil, err
	}

	mode := model.ExcitationSingle
	if len(channels) == 2 {
		mode = model.ExcitationDual
	}

	return &model.SessionRecord{
		SubjectID:        in.SubjectID,
		SessionID:        in.SessionID,
		SessionStartTime: in.SessionStartTime,
		ExcitationMode:   mode,
		Timebase:         mergeTimebase(channels, start, stop),
		Channels:         channels,
		Fibers:           append([]model.FiberLocation(nil), in.Fibers...),
		Subject:          in.Subject,
		Metadata:         describe(in, channels, mode),
		Warnings:         warnings,
	}, nil
}

// frameTimes extracts one timestamp sequence per channel. Two channels on
// the same TTL stream share one interleaved pulse train.
func frameTimes(in Inputs, opts Options) ([]model.FrameTimestampSequence, error) {
	if len(in.Channels) == 2 && in.Channels[0].TTLStream == in.Channels[1].TTLStream {
		stream := in.Channels[0].TTLStream
		combinedOpts := opts.Timebase
		combinedOpts.ExpectedRate *= 2

		combined, err := timebase.ExtractFrameTimes(in.TTL, stream, combinedOpts)
		if err != nil {
			return nil, fmt.Errorf("shared TTL stream: %w", err)
		}
		a, b, err := interleave.Deinterleave(combined.Timestamps, opts.Interleave)
		if err != nil {
			return nil, fmt.Errorf("shared TTL stream %q: %w", stream, err)
		}
		out := make([]model.FrameTimestampSequence, 2)
		for i, ts := range [][]float64{a, b} {
			out[i] = model.FrameTimestampSequence{
				Timestamps:   ts,
				Rate:         combined.Rate / 2,
				RateInferred: combined.RateInferred,
				Outliers:     timebase.Outliers(ts, opts.Timebase.GapTolerance),
			}
		}
		return out, nil
	}

	out := make([]model.FrameTimestampSequence, len(in.Channels))
	for i, ch := range in.Channels {
		seq, err := timebase.ExtractFrameTimes(in.TTL, ch.TTLStream, opts.Timebase)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Channel, err)
		}
		out[i] = seq
	}
	return out, nil
}

func alignChannel(ch ChannelInput, seq model.FrameTimestampSequence, ttl []model.RawChannelSeries, opts Options) (model.ChannelRecord, []string, error) {
	var warnings []string
	note := func(clip *window.Clip) {
		if clip != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %s", ch.Channel, clip.Error()))
		}
	}

	requested := ch.Processed.Window
	if opts.StubFrames > 0 {
		requested = requested.Truncate(opts.StubFrames)
	}

	photometry := ch.Processed.Photometry
	fluorescence, clip, err := window.Apply(ch.Channel.ResponseSeriesName(), photometry.Data, seq.Timestamps, requested)
	if err != nil {
		return model.ChannelRecord{}, nil, err
	}
	note(clip)

	// Every other stream follows the window that survived the fluorescence.
	effective := model.InclusionWindow{First: fluorescence.SourceFirst, Last: fluorescence.SourceFirst + fluorescence.Len() - 1}

	rec := model.ChannelRecord{
		Channel:      ch.Channel,
		TTLStream:    ch.TTLStream,
		Window:       effective,
		TotalFrames:  seq.Len(),
		Rate:         seq.Rate,
		RateInferred: seq.RateInferred,
		Fluorescence: fluorescence,
		ROIs:         append([]model.ROI(nil), photometry.ROIs...),
	}
	rec.TimingOutliers = outliersWithin(seq.Outliers, effective)
	if n := len(rec.TimingOutliers); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: %d frame interval(s) deviate from the median by more than %.0f%%",
			ch.Channel, n, opts.Timebase.GapTolerance*100))
	}
	if seq.RateInferred {
		warnings = append(warnings, fmt.Sprintf("%s: frame rate %.3f Hz inferred from TTL pulses", ch.Channel, seq.Rate))
	}

	if ch.Frames != nil {
		available := min(ch.Frames.Len(), len(seq.Timestamps))
		applied, clip, err := window.Resolve(ch.Channel.PhotonSeriesName(), effective, available)
		if err != nil {
			return model.ChannelRecord{}, nil, err
		}
		note(clip)
		frames, err := ch.Frames.ReadFrames(applied.First, applied.Last)
		if err != nil {
			return model.ChannelRecord{}, nil, fmt.Errorf("reading imaging frames %s: %w", applied, err)
		}
		if len(frames) != applied.Len() {
			return model.ChannelRecord{}, nil, fmt.Errorf("imaging source returned %d frames for %s", len(frames), applied)
		}
		rec.Imaging = &model.AlignedStream[model.Frame]{
			Name:        ch.Channel.PhotonSeriesName(),
			Timestamps:  append([]float64(nil), seq.Timestamps[applied.First:applied.Last+1]...),
			Values:      frames,
			SourceFirst: applied.First,
		}
		rec.FrameShape = ch.Frames.Shape()
	}

	if behavior := ch.Processed.Behavior; behavior != nil {
		for _, name := range behavior.Channels() {
			stream, clip, err := window.Apply(name, behavior[name], seq.Timestamps, effective)
			if err != nil {
				return model.ChannelRecord{}, nil, fmt.Errorf("behavior %q: %w", name, err)
			}
			note(clip)
			rec.Behavior = append(rec.Behavior, stream)
		}
	}

	raw := append([]string(nil), ch.RawBehavior...)
	sort.Strings(raw)
	for _, name := range raw {
		series, ok := model.FindSeries(ttl, name)
		if !ok {
			return model.ChannelRecord{}, nil, fmt.Errorf("%w: behavioral channel %q", errs.ErrChannelNotFound, name)
		}
		times := fluorescence.Timestamps
		values, err := timebase.SampleAt(series, times)
		if err != nil {
			return model.ChannelRecord{}, nil, err
		}
		rec.Behavior = append(rec.Behavior, model.AlignedStream[float64]{
			Name:        name,
			Timestamps:  append([]float64(nil), times...),
			Values:      values,
			SourceFirst: effective.First,
		})
	}

	return rec, warnings, nil
}

// sharedRange intersects the channels' time ranges.
func sharedRange(channels []model.ChannelRecord, minFrames int) (float64, float64, error) {
	start, stop := channels[0].Fluorescence.Start(), channels[0].Fluorescence.Stop()
	for _, ch := range channels[1:] {
		start = max(start, ch.Fluorescence.Start())
		stop = min(stop, ch.Fluorescence.Stop())
	}
	if len(channels) < 2 {
		return start, stop, nil
	}
	if start > stop {
		return 0, 0, fmt.Errorf("%w: channel time ranges do not intersect (latest start %.4fs after earliest stop %.4fs)",
			errs.ErrNoSharedTimeWindow, start, stop)
	}
	if minFrames > 0 {
		for _, ch := range channels {
			if n := countWithin(ch.Timestamps(), start, stop); n < minFrames {
				return 0, 0, fmt.Errorf("%w: channel %s has %d frames in [%.4f, %.4f], need %d",
					errs.ErrNoSharedTimeWindow, ch.Channel, n, start, stop, minFrames)
			}
		}
	}
	return start, stop, nil
}

func countWithin(ts []float64, start, stop float64) int {
	n := 0
	for _, t := range ts {
		if t >= start && t <= stop {
			n++
		}
	}
	return n
}

func mergeTimebase(channels []model.ChannelRecord, start, stop float64) model.Timebase {
	tb := model.Timebase{OverlapStart: start, OverlapStop: stop}
	for _, ch := range channels {
		tb.Timestamps = append(tb.Timestamps, ch.Timestamps()...)
		tb.Rate += ch.Rate
		tb.RateInferred = tb.RateInferred || ch.RateInferred
	}
	sort.Float64s(tb.Timestamps)
	return tb
}

func outliersWithin(outliers []int, w model.InclusionWindow) []int {
	var out []int
	for _, idx := range outliers {
		if idx > w.First && idx <= w.Last {
			out = append(out, idx)
		}
	}
	return out
}

func acceptedFibers(fibers []model.FiberLocation) []int {
	var accepted []int
	for i, f := range fibers {
		if f.Included {
			accepted = append(accepted, i)
		}
	}
	return accepted
}

func describe(in Inputs, channels []model.ChannelRecord, mode string) map[string]any {
	meta := metadata.Clone(in.Metadata)
	for _, ch := range channels {
		meta = metadata.ForChannel(meta, ch.Channel, mode, ch.Rate)
	}
	meta = metadata.DeepUpdate(meta, map[string]any{
		"NWBFile": map[string]any{
			"session_id":      in.SessionID,
			"excitation_mode": mode,
		},
	})
	return meta
}
