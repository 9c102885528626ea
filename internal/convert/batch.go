package convert

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/penwyp/go-photometry-sync/internal/batch"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/table"
	"github.com/penwyp/go-photometry-sync/internal/inspect"
	"github.com/penwyp/go-photometry-sync/internal/output"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Layout maps manifest rows onto the lab's folder structure:
// <root>/<subject>/<experiment>/raw/ for acquisition files, the processed
// document in the experiment folder and the fiber table in the subject
// folder.
type Layout struct {
	Root       string
	FiberTable string
}

func (l Layout) SubjectFolder(row table.ManifestRow) string {
	return filepath.Join(l.Root, row.SubjectID())
}

func (l Layout) SessionFolder(row table.ManifestRow) string {
	return filepath.Join(l.SubjectFolder(row), row.ExperimentDirectory)
}

func (l Layout) RawFile(row table.ManifestRow, name string) string {
	return filepath.Join(l.SessionFolder(row), "raw", name)
}

func (l Layout) ProcessedFile(row table.ManifestRow) string {
	return filepath.Join(l.SessionFolder(row), row.ProcessedDataFile)
}

func (l Layout) FiberTablePath(row table.ManifestRow) string {
	return filepath.Join(l.SubjectFolder(row), l.FiberTable)
}

// manifestSessions adapts the converter to the batch driver.
type manifestSessions struct {
	conv     *Converter
	layout   Layout
	subjects map[string]model.SubjectMetadata
	stub     bool
	report   bool
}

// DualParams builds the conversion parameters of a manifest session.
func (m *manifestSessions) DualParams(group table.SessionGroup, outputPath string, overwrite bool) DualWavelengthParams {
	row := group.First()
	channels := row.Channels()
	p := DualWavelengthParams{
		TTLFilePath:            m.layout.RawFile(row, row.RawBehaviorFile),
		TTLStreamNames:         m.conv.cfg.Conversion.TTLStreams,
		FiberLocationsFilePath: m.layout.FiberTablePath(row),
		ProcessedDataFilePath:  m.layout.ProcessedFile(row),
		NWBFilePath:            outputPath,
		SamplingFrequency:      m.conv.cfg.Conversion.SamplingFrequency,
		StubTest:               m.stub,
		Overwrite:              overwrite,
		RawBehavior:            m.conv.cfg.Conversion.RawBehavior,
		SubjectID:              row.SubjectID(),
		SessionID:              row.ExperimentDirectory,
	}
	for _, ch := range channels {
		p.RawImagingFilePaths = append(p.RawImagingFilePaths, m.layout.RawFile(row, ch.RawImagingFile))
		p.ExcitationWavelengthsNM = append(p.ExcitationWavelengthsNM, ch.WavelengthNM)
		p.Indicators = append(p.Indicators, ch.Indicator())
		p.FiberPhotometryFields = append(p.FiberPhotometryFields, ch.PhotometryField)
		p.BehaviorFields = append(p.BehaviorFields, ch.BehaviorField)
		p.IndexFields = append(p.IndexFields, ch.IndexField)
	}
	if s, ok := m.subjects[row.Mouse]; ok {
		p.Subject = &s
	}
	return p
}

// Inputs lists the files a manifest session reads.
func (m *manifestSessions) Inputs(group table.SessionGroup) ([]string, error) {
	p := m.DualParams(group, "", false)
	paths := []string{p.TTLFilePath, p.ProcessedDataFilePath, p.FiberLocationsFilePath}
	seen := make(map[string]bool)
	for _, path := range p.RawImagingFilePaths {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// Convert converts one session and writes its inspection report next to
// the container.
func (m *manifestSessions) Convert(ctx context.Context, group table.SessionGroup, outputPath string, overwrite bool) (*model.SessionRecord, error) {
	record, err := m.conv.DualWavelengthSessionToNWB(ctx, m.DualParams(group, outputPath, overwrite))
	if err != nil {
		return nil, err
	}
	if m.report {
		if err := writeInspection(outputPath, record.SubjectID, record.SessionID); err != nil {
			util.LogWarn(fmt.Sprintf("Inspection of %s failed: %v", outputPath, err))
		}
	}
	return record, nil
}

// writeInspection inspects a written container and stores the report
// unless one exists already.
func writeInspection(containerPath, subjectID, sessionID string) error {
	c, err := output.ReadContainer(containerPath)
	if err != nil {
		return err
	}
	findings := inspect.Inspect(c)
	reportPath := filepath.Join(filepath.Dir(containerPath), inspect.ReportName(subjectID, sessionID))
	written, err := inspect.WriteReport(reportPath, containerPath, findings)
	if err != nil {
		return err
	}
	if written {
		util.LogInfo(fmt.Sprintf("Wrote inspection report %s (%d findings)", reportPath, len(findings)))
	}
	return nil
}

// ConvertAllDualWavelengthSessions converts every manifest session of the
// selected subjects. recorder may be nil.
func (c *Converter) ConvertAllDualWavelengthSessions(ctx context.Context, p BatchParams, recorder batch.Recorder) ([]model.Outcome, error) {
	rows, err := c.deps.Tables.ReadTable(p.DataTablePath)
	if err != nil {
		return nil, err
	}
	manifest, err := table.ParseManifest(toRows(rows))
	if err != nil {
		return nil, fmt.Errorf("session table %s: %w", p.DataTablePath, err)
	}

	subjects := map[string]model.SubjectMetadata{}
	if p.SubjectsTablePath != "" {
		rows, err := c.deps.Tables.ReadTable(p.SubjectsTablePath)
		if err != nil {
			return nil, err
		}
		if subjects, err = table.ParseSubjects(toRows(rows), c.times.Location()); err != nil {
			return nil, fmt.Errorf("subject table %s: %w", p.SubjectsTablePath, err)
		}
	}

	sessions := &manifestSessions{
		conv:     c,
		layout:   Layout{Root: p.FolderPath, FiberTable: c.cfg.Conversion.FiberTable},
		subjects: subjects,
		stub:     p.StubTest,
		report:   c.cfg.Output.WriteReport,
	}
	concurrency := p.Concurrency
	if concurrency == 0 {
		concurrency = c.cfg.Batch.Concurrency
	}
	driver := batch.NewDriver(sessions, recorder, batch.Options{
		OutputDir:     p.NWBFileFolderPath,
		Stub:          p.StubTest,
		Concurrency:   concurrency,
		SkipUnchanged: p.SkipUnchanged,
		RunID:         p.RunID,
	})
	return driver.Run(ctx, manifest, p.SubjectIDs, p.Overwrite)
}
