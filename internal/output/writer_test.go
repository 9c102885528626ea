package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
	"github.com/penwyp/go-photometry-sync/internal/data/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *model.SessionRecord {
	green := model.WavelengthChannel{WavelengthNM: 470, Indicator: "ACh3.0", Field: "ACh"}
	ts := []float64{0.5, 0.55, 0.6}
	return &model.SessionRecord{
		SubjectID:        "UG27",
		SessionID:        "Exp_1",
		SessionStartTime: time.Date(2023, 5, 4, 13, 0, 0, 0, time.UTC),
		ExcitationMode:   model.ExcitationSingle,
		Timebase:         model.Timebase{Timestamps: ts, Rate: 20, OverlapStart: 0.5, OverlapStop: 0.6},
		Channels: []model.ChannelRecord{{
			Channel: green,
			Window:  model.InclusionWindow{First: 2, Last: 4},
			Rate:    20,
			Fluorescence: model.AlignedStream[[]float64]{
				Name: green.ResponseSeriesName(), Timestamps: ts,
				Values: [][]float64{{1, 2}, {3, 4}, {5, 6}}, SourceFirst: 2,
			},
			Imaging: &model.AlignedStream[model.Frame]{
				Name: green.PhotonSeriesName(), Timestamps: ts,
				Values: []model.Frame{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}, SourceFirst: 2,
			},
			FrameShape: model.FrameShape{Height: 2, Width: 2},
			Behavior: []model.AlignedStream[float64]{
				{Name: "speed", Timestamps: ts, Values: []float64{0.1, 0.2, 0.3}, SourceFirst: 2},
			},
			ROIs:           []model.ROI{{ID: 1, X: 10, Y: 10, Radius: 3}},
			AcceptedFibers: []int{0},
		}},
		Fibers:   []model.FiberLocation{{Fiber: 1, Region: "DMS", Included: true}},
		Metadata: map[string]any{"NWBFile": map[string]any{"session_id": "Exp_1"}},
		Warnings: []string{"clipped"},
	}
}

func TestWriteAndReadContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", FileName("UG27", "Exp_1", false))
	w := NewWriter(2, time.Millisecond)

	require.NoError(t, w.Write(sampleRecord(), path, false))

	c, err := ReadContainer(path)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, c.FormatVersion)
	assert.Equal(t, Identifier("UG27", "Exp_1"), c.Identifier)
	assert.Equal(t, model.ExcitationSingle, c.ExcitationMode)

	fl := c.Processing.Ophys.ResponseSeries["FiberPhotometryResponseSeriesGreen"]
	assert.Equal(t, 3, fl.Len())
	assert.Equal(t, 2, fl.StartingFrame)
	assert.Equal(t, []float64{0.5, 0.55, 0.6}, fl.Timestamps)
	assert.Equal(t, []int{0}, c.Processing.Ophys.AcceptedFibers)
	assert.Len(t, c.Processing.Ophys.ROIs["FiberPhotometryResponseSeriesGreen"], 1)

	speed := c.Processing.Behavior["speed"]
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, speed.Data)

	img := c.Acquisition["OnePhotonSeriesGreen"]
	assert.Equal(t, 3, img.Len())
	assert.Equal(t, []int{2, 2}, img.FrameShape)
	sidecar := filepath.Join(filepath.Dir(path), img.ExternalFile)
	assert.Equal(t, SidecarPath(path, "OnePhotonSeriesGreen"), sidecar)

	frames, err := imaging.NewReader().ReadFrames(sidecar, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.Frame{{5, 6, 7, 8}, {9, 10, 11, 12}}, frames)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestWriteRefusesExistingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("UG27", "Exp_1", true))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	w := NewWriter(0, time.Millisecond)

	err := w.Write(sampleRecord(), path, false)
	assert.ErrorIs(t, err, errs.ErrOutputExists)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "{}", string(data))

	require.NoError(t, w.Write(sampleRecord(), path, true))
	c, err := ReadContainer(path)
	require.NoError(t, err)
	assert.Equal(t, "UG27", c.SubjectID)
}

func TestWriteFailsOnEncodeErrorWithoutRetry(t *testing.T) {
	rec := sampleRecord()
	rec.Channels[0].Imaging.Values[1] = model.Frame{1}
	path := filepath.Join(t.TempDir(), "bad.nwb.json")

	err := NewWriter(5, time.Hour).Write(rec, path, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 1 has 1 pixels")
	assert.False(t, Exists(path))
}

func TestWriteIsByteIdentical(t *testing.T) {
	meta, err := metadata.Defaults()
	require.NoError(t, err)
	rec := sampleRecord()
	rec.Metadata = meta
	path := filepath.Join(t.TempDir(), FileName("UG27", "Exp_1", false))
	w := NewWriter(0, time.Millisecond)

	require.NoError(t, w.Write(rec, path, false))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Write(rec, path, true))
		again, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, string(first), string(again), "write %d", i)
	}
}

func TestWriteContainerFailureRemovesSidecars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("UG27", "Exp_1", false))
	// A non-empty directory at the container path makes the final rename fail.
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0644))

	err := NewWriter(1, time.Millisecond).Write(sampleRecord(), path, true)

	require.Error(t, err)
	assert.NoFileExists(t, SidecarPath(path, "OnePhotonSeriesGreen"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the blocking directory remains")
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "UG27_Exp_1.nwb.json", FileName("UG27", "Exp_1", false))
	assert.Equal(t, "stub-UG27_Exp_1.nwb.json", FileName("UG27", "Exp_1", true))
	assert.Equal(t, "/x/a_b.OnePhotonSeriesRed.rawstack", SidecarPath("/x/a_b.nwb.json", "OnePhotonSeriesRed"))
}

func TestFromRecordRenamesDuplicateBehavior(t *testing.T) {
	rec := sampleRecord()
	red := model.WavelengthChannel{WavelengthNM: 570, Indicator: "rDA3m", Field: "DA"}
	second := rec.Channels[0]
	second.Channel = red
	second.Imaging = nil
	second.Fluorescence.Name = red.ResponseSeriesName()
	rec.Channels = append(rec.Channels, second)

	c := FromRecord(rec, nil)

	assert.Contains(t, c.Processing.Behavior, "speed")
	assert.Contains(t, c.Processing.Behavior, "speedRed")
	keys, all := c.AllSeries()
	assert.Len(t, keys, 5)
	assert.Equal(t, "acquisition/OnePhotonSeriesGreen", keys[0])
	assert.Equal(t, 3, all["processing/behavior/speedRed"].Len())
}
