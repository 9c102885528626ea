// Package convert is the entry point of session conversions: it reads a
// session's files, assembles the aligned record and writes the container.
package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/config"
	"github.com/penwyp/go-photometry-sync/internal/core/assembler"
	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/interleave"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/core/ports"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
	"github.com/penwyp/go-photometry-sync/internal/data/metadata"
	"github.com/penwyp/go-photometry-sync/internal/data/processed"
	"github.com/penwyp/go-photometry-sync/internal/data/table"
	"github.com/penwyp/go-photometry-sync/internal/data/ttl"
	"github.com/penwyp/go-photometry-sync/internal/output"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Deps are the readers and writer a Converter uses.
type Deps struct {
	TTL        ports.TTLReader
	Imaging    ports.ImagingReader
	Tables     ports.TableReader
	Processed  ports.ProcessedReader
	Serializer ports.Serializer
}

// DefaultDeps returns the file-format adapters configured by cfg.
func DefaultDeps(cfg *config.Config) Deps {
	return Deps{
		TTL:        ttl.NewReader(),
		Imaging:    imaging.NewReader(),
		Tables:     table.NewReader(),
		Processed:  processed.NewReader(),
		Serializer: output.NewWriter(cfg.Output.WriteRetries, cfg.Output.RetryInterval),
	}
}

// Converter converts sessions. It holds no per-session state and is safe
// for concurrent use.
type Converter struct {
	cfg      *config.Config
	metadata map[string]any
	deps     Deps
	times    *util.TimeProvider
}

// NewConverter creates a converter. meta is the descriptive metadata every
// session starts from.
func NewConverter(cfg *config.Config, meta map[string]any, deps Deps) (*Converter, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Converter{
		cfg:      cfg,
		metadata: metadata.Clone(meta),
		deps:     deps,
		times:    util.NewTimeProvider(loc),
	}, nil
}

// SingleWavelengthSessionToNWB converts a single-wavelength session.
func (c *Converter) SingleWavelengthSessionToNWB(ctx context.Context, p SingleWavelengthParams) (*model.SessionRecord, error) {
	return c.convert(ctx, p.spec())
}

// DualWavelengthSessionToNWB converts a dual-wavelength session.
func (c *Converter) DualWavelengthSessionToNWB(ctx context.Context, p DualWavelengthParams) (*model.SessionRecord, error) {
	spec, err := p.spec()
	if err != nil {
		return nil, err
	}
	return c.convert(ctx, spec)
}

func (c *Converter) convert(ctx context.Context, s sessionSpec) (*model.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.outputPath == "" {
		return nil, fmt.Errorf("no output path given")
	}
	if !s.overwrite && output.Exists(s.outputPath) {
		return nil, fmt.Errorf("%w: %s", errs.ErrOutputExists, s.outputPath)
	}
	if s.subjectID == "" {
		s.subjectID = filepath.Base(filepath.Dir(filepath.Dir(s.processedPath)))
	}
	if s.sessionID == "" {
		s.sessionID = filepath.Base(filepath.Dir(s.processedPath))
	}

	begin := time.Now()
	inputs, err := c.inputs(s)
	if err != nil {
		return nil, err
	}

	opts := c.cfg.AssemblerOptions(inputs.rate, s.stub)
	record, err := assembler.Assemble(inputs.Inputs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble session %s/%s: %w", s.subjectID, s.sessionID, err)
	}
	for _, w := range record.Warnings {
		util.LogWarn(fmt.Sprintf("%s/%s: %s", s.subjectID, s.sessionID, w))
	}

	if err := c.deps.Serializer.Write(record, s.outputPath, s.overwrite); err != nil {
		return nil, err
	}
	util.LogInfo(fmt.Sprintf("Converted %s/%s (%s, %d channels) in %s",
		s.subjectID, s.sessionID, record.ExcitationMode, len(record.Channels), util.FormatDuration(time.Since(begin))))
	return record, nil
}

type sessionInputs struct {
	assembler.Inputs
	// rate is the declared per-channel frame rate, zero to infer.
	rate float64
}

// inputs reads every file of the session.
func (c *Converter) inputs(s sessionSpec) (*sessionInputs, error) {
	rec, err := c.deps.TTL.ReadRecording(s.ttlPath)
	if err != nil {
		return nil, err
	}

	doc, err := c.deps.Processed.ReadDocument(s.processedPath)
	if err != nil {
		return nil, err
	}

	var fibers []model.FiberLocation
	if s.fibersPath != "" {
		rows, err := c.deps.Tables.ReadTable(s.fibersPath)
		if err != nil {
			return nil, err
		}
		if fibers, err = table.ParseFiberLocations(toRows(rows)); err != nil {
			return nil, fmt.Errorf("fiber table %s: %w", s.fibersPath, err)
		}
	}

	frames, storedRate, err := c.frameSources(s.channels)
	if err != nil {
		return nil, err
	}

	rate := s.rate
	if rate == 0 {
		rate = storedRate
	}

	subject := s.subject
	if subject == nil {
		subject = &model.SubjectMetadata{SubjectID: s.subjectID}
	}

	in := &sessionInputs{
		Inputs: assembler.Inputs{
			SubjectID:        s.subjectID,
			SessionID:        s.sessionID,
			SessionStartTime: c.times.Localize(rec.StartTime),
			TTL:              rec.Series,
			Fibers:           fibers,
			Subject:          subject,
			Metadata:         c.sessionMetadata(subject),
		},
		rate: rate,
	}
	for i, ch := range s.channels {
		resolved, err := processed.Resolve(doc, processed.Fields{
			Photometry: ch.field,
			Behavior:   ch.behaviorField,
			Index:      ch.indexField,
		})
		if err != nil {
			return nil, fmt.Errorf("channel %d of %s: %w", i, s.processedPath, err)
		}
		input := assembler.ChannelInput{
			Channel: model.WavelengthChannel{
				WavelengthNM: ch.wavelengthNM,
				Indicator:    ch.indicator,
				Field:        ch.field,
			},
			TTLStream: ch.ttlStream,
			Processed: resolved,
			Frames:    frames[i],
		}
		if i == 0 {
			input.RawBehavior = s.rawBehavior
		}
		in.Channels = append(in.Channels, input)
	}
	return in, nil
}

// frameSources opens the imaging stacks of every channel. Two channels on
// the same stack share it through an interleaved split. The returned rate
// is the one stored in the stacks, per channel.
func (c *Converter) frameSources(channels []channelSpec) ([]assembler.FrameSource, float64, error) {
	sources := make([]assembler.FrameSource, len(channels))
	var rate float64

	if len(channels) == 2 && channels[0].imagingPath != "" && channels[0].imagingPath == channels[1].imagingPath {
		file, err := openFrames(c.deps.Imaging, channels[0].imagingPath)
		if err != nil {
			return nil, 0, err
		}
		parity, _ := interleave.ParseParity(c.cfg.Alignment.Parity)
		sources[0] = &interleavedFrames{file: file, parity: parity}
		sources[1] = &interleavedFrames{file: file, parity: parity, second: true}
		return sources, file.meta.SamplingFrequency / 2, nil
	}

	for i, ch := range channels {
		if ch.imagingPath == "" {
			continue
		}
		file, err := openFrames(c.deps.Imaging, ch.imagingPath)
		if err != nil {
			return nil, 0, err
		}
		sources[i] = file
		if rate == 0 {
			rate = file.meta.SamplingFrequency
		}
	}
	return sources, rate, nil
}

// sessionMetadata layers the subject onto the converter's metadata.
func (c *Converter) sessionMetadata(subject *model.SubjectMetadata) map[string]any {
	s := map[string]any{"subject_id": subject.SubjectID}
	for key, value := range map[string]string{
		"species":  subject.Species,
		"strain":   subject.Strain,
		"sex":      subject.Sex,
		"genotype": subject.Genotype,
	} {
		if value != "" {
			s[key] = value
		}
	}
	if !subject.DateOfBirth.IsZero() {
		s["date_of_birth"] = c.times.Localize(subject.DateOfBirth).Format(time.RFC3339)
	}
	return metadata.DeepUpdate(c.metadata, map[string]any{"Subject": s})
}

func toRows(rows []map[string]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
