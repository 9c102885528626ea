package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/config"
	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/metadata"
	"github.com/penwyp/go-photometry-sync/internal/data/table"
	"github.com/penwyp/go-photometry-sync/internal/inspect"
	"github.com/penwyp/go-photometry-sync/internal/output"
	"github.com/penwyp/go-photometry-sync/internal/testing/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Alignment: config.AlignmentConfig{
			EdgeThreshold: 0.5, RateTolerance: 0.10, GapTolerance: 0.5, DropTolerance: 0.5, Parity: "even",
		},
		Conversion: config.ConversionConfig{
			StubFrames:        10,
			SamplingFrequency: 18,
			Timezone:          "America/New_York",
			TTLStreams:        []string{"ttlIn1", "ttlIn2"},
			FiberTable:        fixtures.FiberTable,
		},
		Batch:  config.BatchConfig{Concurrency: 1},
		Output: config.OutputConfig{WriteRetries: 1, RetryInterval: time.Millisecond, WriteReport: true},
	}
}

func newTestConverter(t *testing.T, cfg *config.Config) *Converter {
	t.Helper()
	meta, err := metadata.Defaults()
	require.NoError(t, err)
	conv, err := NewConverter(cfg, meta, DefaultDeps(cfg))
	require.NoError(t, err)
	return conv
}

func singleParams(files *fixtures.SessionFiles, out string) SingleWavelengthParams {
	return SingleWavelengthParams{
		RawImagingFilePath:     files.GreenImaging,
		TTLFilePath:            files.TTL,
		TTLStreamName:          "ttlIn1",
		FiberLocationsFilePath: files.FiberTable,
		ExcitationWavelengthNM: 470,
		Indicator:              "ACh3.0",
		ProcessedDataFilePath:  files.Processed,
		FiberPhotometryField:   fixtures.GreenField,
		BehaviorField:          fixtures.GreenBehavior,
		IndexField:             fixtures.GreenIndex,
		NWBFilePath:            out,
		SamplingFrequency:      18,
	}
}

func dualParams(files *fixtures.SessionFiles, out string) DualWavelengthParams {
	return DualWavelengthParams{
		RawImagingFilePaths:     []string{files.GreenImaging, files.RedImaging},
		TTLFilePath:             files.TTL,
		TTLStreamNames:          []string{"ttlIn1", "ttlIn2"},
		FiberLocationsFilePath:  files.FiberTable,
		ExcitationWavelengthsNM: []int{470, 570},
		Indicators:              []string{"ACh3.0", "rDA3m"},
		ProcessedDataFilePath:   files.Processed,
		FiberPhotometryFields:   []string{fixtures.GreenField, fixtures.RedField},
		BehaviorFields:          []string{fixtures.GreenBehavior, fixtures.RedBehavior},
		IndexFields:             []string{fixtures.GreenIndex, fixtures.RedIndex},
		NWBFilePath:             out,
		SamplingFrequency:       18,
	}
}

func TestSingleWavelengthSession(t *testing.T) {
	root := t.TempDir()
	files, err := fixtures.NewTestDataGenerator(root).GenerateSession(fixtures.SessionSpec{Mouse: "UG-27", Experiment: "240214"})
	require.NoError(t, err)
	out := filepath.Join(root, "nwb", "single.nwb.json")

	p := singleParams(files, out)
	p.RawBehavior = []string{fixtures.WheelChannel}
	record, err := newTestConverter(t, testConfig()).SingleWavelengthSessionToNWB(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "UG27", record.SubjectID)
	assert.Equal(t, "240214", record.SessionID)
	assert.Equal(t, model.ExcitationSingle, record.ExcitationMode)
	assert.Equal(t, 9, record.SessionStartTime.Hour())
	assert.Equal(t, "America/New_York", record.SessionStartTime.Location().String())

	require.Len(t, record.Channels, 1)
	ch := record.Channels[0]
	assert.Equal(t, 60, ch.Fluorescence.Len())
	assert.Equal(t, fixtures.Fluorescence(0, 7, 2), ch.Fluorescence.Values[7][2])
	edges := files.GreenEdges()
	for i, ts := range ch.Timestamps() {
		assert.InDelta(t, edges[i], ts, 1e-9)
	}
	assert.Equal(t, []int{0, 2}, ch.AcceptedFibers)
	require.NotNil(t, ch.Imaging)
	assert.Equal(t, 60, ch.Imaging.Len())
	assert.Equal(t, uint16(59), ch.Imaging.Values[59][0])

	var names []string
	for _, b := range ch.Behavior {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"speed", fixtures.WheelChannel}, names)

	c, err := output.ReadContainer(out)
	require.NoError(t, err)
	assert.Contains(t, c.Processing.Ophys.ResponseSeries, "FiberPhotometryResponseSeriesGreen")
	assert.Contains(t, c.Acquisition, "OnePhotonSeriesGreen")
	nwbFile := c.General["NWBFile"].(map[string]any)
	assert.Equal(t, "240214", nwbFile["session_id"])
}

func TestSingleWavelengthSessionWindowAndStub(t *testing.T) {
	root := t.TempDir()
	gen := fixtures.NewTestDataGenerator(root)
	files, err := gen.GenerateSession(fixtures.SessionSpec{Mouse: "UG27", Experiment: "240215", Window: [2]int{5, 44}})
	require.NoError(t, err)
	conv := newTestConverter(t, testConfig())

	record, err := conv.SingleWavelengthSessionToNWB(context.Background(), singleParams(files, filepath.Join(root, "full.nwb.json")))
	require.NoError(t, err)
	ch := record.Channels[0]
	assert.Equal(t, model.InclusionWindow{First: 4, Last: 43}, ch.Window)
	assert.Equal(t, 40, ch.Fluorescence.Len())
	assert.InDelta(t, files.GreenEdges()[4], ch.Fluorescence.Start(), 1e-9)
	assert.Equal(t, uint16(4), ch.Imaging.Values[0][0])

	p := singleParams(files, filepath.Join(root, "stub.nwb.json"))
	p.StubTest = true
	stub, err := conv.SingleWavelengthSessionToNWB(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 10, stub.Channels[0].Fluorescence.Len())
	assert.Equal(t, 10, stub.Channels[0].Imaging.Len())
	assert.Equal(t, 4, stub.Channels[0].Window.First)
}

func TestSingleWavelengthSessionIsIdempotent(t *testing.T) {
	root := t.TempDir()
	files, err := fixtures.NewTestDataGenerator(root).GenerateSession(fixtures.SessionSpec{Mouse: "UG27", Experiment: "240214"})
	require.NoError(t, err)
	conv := newTestConverter(t, testConfig())
	p := singleParams(files, filepath.Join(root, "a.nwb.json"))
	p.Overwrite = true

	first, err := conv.SingleWavelengthSessionToNWB(context.Background(), p)
	require.NoError(t, err)
	second, err := conv.SingleWavelengthSessionToNWB(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDualWavelengthSession(t *testing.T) {
	root := t.TempDir()
	files, err := fixtures.NewTestDataGenerator(root).GenerateSession(fixtures.SessionSpec{Mouse: "UG27", Experiment: "240214"})
	require.NoError(t, err)

	record, err := newTestConverter(t, testConfig()).DualWavelengthSessionToNWB(context.Background(), dualParams(files, filepath.Join(root, "dual.nwb.json")))
	require.NoError(t, err)

	assert.Equal(t, model.ExcitationDual, record.ExcitationMode)
	require.Len(t, record.Channels, 2)
	green, red := record.Channels[0], record.Channels[1]
	assert.Equal(t, "FiberPhotometryResponseSeriesRed", red.Fluorescence.Name)
	assert.Equal(t, fixtures.Fluorescence(1, 0, 0), red.Fluorescence.Values[0][0])
	assert.InDelta(t, files.RedEdges()[0], red.Fluorescence.Start(), 1e-9)
	assert.Equal(t, uint16(1000), red.Imaging.Values[0][0])
	assert.NotEmpty(t, green.Behavior)
	assert.Empty(t, red.Behavior, "behavior comes from the first channel only")
	assert.Len(t, record.Timebase.Timestamps, 120)
	assert.InDelta(t, 36.0, record.Timebase.Rate, 1e-9)
}

func TestDualWavelengthSessionInterleaved(t *testing.T) {
	root := t.TempDir()
	gen := fixtures.NewTestDataGenerator(root)
	files, err := gen.GenerateSession(fixtures.SessionSpec{Mouse: "UG27", Experiment: "240216", Frames: 41, SharedTTL: true})
	require.NoError(t, err)
	stack, err := gen.InterleavedStack(files, "both.rawstack")
	require.NoError(t, err)

	p := dualParams(files, filepath.Join(root, "interleaved.nwb.json"))
	p.RawImagingFilePaths = []string{stack, stack}
	p.TTLStreamNames = []string{"ttlIn1", "ttlIn1"}
	p.SamplingFrequency = 0

	record, err := newTestConverter(t, testConfig()).DualWavelengthSessionToNWB(context.Background(), p)
	require.NoError(t, err)

	green, red := record.Channels[0], record.Channels[1]
	assert.False(t, green.RateInferred, "rate comes from the stack header")
	assert.InDelta(t, 18.0, green.Rate, 0.5)
	assert.Equal(t, 41, green.Imaging.Len())
	assert.Equal(t, 41, red.Imaging.Len())
	assert.Equal(t, uint16(40), green.Imaging.Values[40][0])
	assert.Equal(t, uint16(1040), red.Imaging.Values[40][0])
	assert.InDelta(t, files.RedEdges()[3], red.Timestamps()[3], 1e-9)
}

func TestConvertRefusesExistingOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exists.nwb.json")
	require.NoError(t, os.WriteFile(out, []byte("{}"), 0644))

	_, err := newTestConverter(t, testConfig()).SingleWavelengthSessionToNWB(context.Background(), SingleWavelengthParams{
		ProcessedDataFilePath: "/missing/UG27/240214/x.json",
		NWBFilePath:           out,
	})
	assert.ErrorIs(t, err, errs.ErrOutputExists)
}

func TestConvertMissingField(t *testing.T) {
	root := t.TempDir()
	files, err := fixtures.NewTestDataGenerator(root).GenerateSession(fixtures.SessionSpec{Mouse: "UG27", Experiment: "240214"})
	require.NoError(t, err)
	p := singleParams(files, filepath.Join(root, "x.nwb.json"))
	p.IndexField = "GCaMP_idx"

	_, err = newTestConverter(t, testConfig()).SingleWavelengthSessionToNWB(context.Background(), p)
	assert.ErrorIs(t, err, errs.ErrFieldNotFound)
	assert.False(t, output.Exists(p.NWBFilePath))
}

func TestDualWavelengthParamsValidation(t *testing.T) {
	p := dualParams(&fixtures.SessionFiles{}, "x")
	p.Indicators = []string{"ACh3.0"}

	_, err := newTestConverter(t, testConfig()).DualWavelengthSessionToNWB(context.Background(), p)
	assert.ErrorContains(t, err, "need two indicators, got 1")
}

func TestConvertAllDualWavelengthSessions(t *testing.T) {
	root := t.TempDir()
	gen := fixtures.NewTestDataGenerator(root)
	var sessions []*fixtures.SessionFiles
	for _, spec := range []fixtures.SessionSpec{
		{Mouse: "UG-27", Experiment: "S1"},
		{Mouse: "UG-27", Experiment: "S2", NoPulses: true},
		{Mouse: "UG-27", Experiment: "S3"},
		{Mouse: "UG-28", Experiment: "S9"},
	} {
		files, err := gen.GenerateSession(spec)
		require.NoError(t, err)
		sessions = append(sessions, files)
	}
	manifest, err := gen.WriteManifest("sessions.csv", sessions...)
	require.NoError(t, err)
	mice, err := gen.WriteSubjects("mice.csv", "UG-27", "UG-28")
	require.NoError(t, err)

	conv := newTestConverter(t, testConfig())
	outDir := filepath.Join(root, "nwb")
	params := BatchParams{
		DataTablePath:     manifest,
		SubjectsTablePath: mice,
		FolderPath:        root,
		NWBFileFolderPath: outDir,
		SubjectIDs:        []string{"UG-27"},
		StubTest:          true,
	}

	outcomes, err := conv.ConvertAllDualWavelengthSessions(context.Background(), params, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, model.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.Equal(t, "NoSyncPulsesFound", outcomes[1].Reason)
	assert.Equal(t, model.StatusSuccess, outcomes[2].Status)
	assert.Equal(t, filepath.Join(outDir, "stub-UG27_S1.nwb.json"), outcomes[0].OutputPath)

	c, err := output.ReadContainer(outcomes[0].OutputPath)
	require.NoError(t, err)
	require.NotNil(t, c.Subject)
	assert.Equal(t, "F", c.Subject.Sex)
	assert.Equal(t, "UG27", c.Subject.SubjectID)
	assert.Len(t, c.Processing.Ophys.ResponseSeries["FiberPhotometryResponseSeriesGreen"].Timestamps, 10)
	assert.FileExists(t, filepath.Join(outDir, inspect.ReportName("UG27", "S1")))
	assert.NoFileExists(t, filepath.Join(outDir, inspect.ReportName("UG27", "S2")))

	outcomes, err = conv.ConvertAllDualWavelengthSessions(context.Background(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, outcomes[0].Status)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.Equal(t, model.StatusSkipped, outcomes[2].Status)

	params.SubjectIDs = []string{"UG-99"}
	_, err = conv.ConvertAllDualWavelengthSessions(context.Background(), params, nil)
	assert.ErrorContains(t, err, "no sessions found for the provided subject IDs")
}

func TestLayout(t *testing.T) {
	l := Layout{Root: "/data", FiberTable: "fiber_table.csv"}
	row := table.ManifestRow{Mouse: "UG-27", ExperimentDirectory: "240214", ProcessedDataFile: "UG27_240214.json"}

	assert.Equal(t, "/data/UG27", l.SubjectFolder(row))
	assert.Equal(t, "/data/UG27/240214", l.SessionFolder(row))
	assert.Equal(t, "/data/UG27/240214/raw/behavior.edf", l.RawFile(row, "behavior.edf"))
	assert.Equal(t, "/data/UG27/240214/UG27_240214.json", l.ProcessedFile(row))
	assert.Equal(t, "/data/UG27/fiber_table.csv", l.FiberTablePath(row))
}
