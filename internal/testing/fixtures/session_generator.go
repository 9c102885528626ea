// Package fixtures writes synthetic acquisition sessions laid out the way
// the lab stores them, for conversion tests.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
	"github.com/penwyp/go-photometry-sync/internal/data/table"
	"github.com/penwyp/go-photometry-sync/internal/data/ttl"
)

// Default file and field names of generated sessions.
const (
	TTLFile       = "behavior.edf"
	GreenImaging  = "green.rawstack"
	RedImaging    = "red.rawstack"
	FiberTable    = "fiber_table.csv"
	GreenField    = "ACh"
	RedField      = "DA"
	GreenBehavior = "behav_ACh"
	RedBehavior   = "behav_DA"
	GreenIndex    = "ACh_idx"
	RedIndex      = "DA_idx"
	GreenSensor   = "AAV9-hSyn-GRAB-ACh3.0"
	RedSensor     = "AAV9-hSyn-GRAB-rDA3m"
	WheelChannel  = "wheel"
)

// SessionSpec describes a synthetic dual-wavelength session. Zero values
// take the defaults noted on each field.
type SessionSpec struct {
	Mouse      string  // raw manifest id, e.g. "UG-27"
	Experiment string  // experiment directory, e.g. "240214"
	Frames     int     // frames per channel, default 60
	Rate       float64 // per-channel frame rate, default 18
	TTLRate    float64 // TTL sample rate, default 1000
	Lead       float64 // seconds before the first pulse, default 0.5
	// Window is the 1-based inclusive index pair stored for both sensors;
	// zero means every frame.
	Window   [2]int
	Fibers   int              // default 3
	Shape    model.FrameShape // default 4x4
	NoPulses bool             // hold both TTL lines low
	// SharedTTL puts both channels' pulses on ttlIn1 as one interleaved train.
	SharedTTL bool
	Start     time.Time // default 2024-02-14 09:34:53
}

func (s SessionSpec) withDefaults() SessionSpec {
	if s.Frames == 0 {
		s.Frames = 60
	}
	if s.Rate == 0 {
		s.Rate = 18
	}
	if s.TTLRate == 0 {
		s.TTLRate = 1000
	}
	if s.Lead == 0 {
		s.Lead = 0.5
	}
	if s.Window == [2]int{} {
		s.Window = [2]int{1, s.Frames}
	}
	if s.Fibers == 0 {
		s.Fibers = 3
	}
	if s.Shape == (model.FrameShape{}) {
		s.Shape = model.FrameShape{Height: 4, Width: 4}
	}
	if s.Start.IsZero() {
		s.Start = time.Date(2024, 2, 14, 9, 34, 53, 0, time.UTC)
	}
	return s
}

// SessionFiles locates everything written for one session.
type SessionFiles struct {
	Spec          SessionSpec
	SubjectID     string
	SubjectFolder string
	SessionFolder string
	TTL           string
	Processed     string
	FiberTable    string
	GreenImaging  string
	RedImaging    string
}

// GreenEdges returns the rising-edge times of the green channel.
func (f *SessionFiles) GreenEdges() []float64 {
	return edgeTimes(f.Spec, 0)
}

// RedEdges returns the rising-edge times of the red channel.
func (f *SessionFiles) RedEdges() []float64 {
	return edgeTimes(f.Spec, 1)
}

// TestDataGenerator writes sessions under a root folder.
type TestDataGenerator struct {
	baseDir string
}

// NewTestDataGenerator creates a new test data generator
func NewTestDataGenerator(baseDir string) *TestDataGenerator {
	return &TestDataGenerator{baseDir: baseDir}
}

// GetBaseDir returns the base directory for test data
func (g *TestDataGenerator) GetBaseDir() string {
	return g.baseDir
}

// GenerateSession writes <base>/<subject>/<experiment>/ with a raw folder
// holding the TTL file and both imaging stacks, the processed document and
// the subject's fiber table.
func (g *TestDataGenerator) GenerateSession(spec SessionSpec) (*SessionFiles, error) {
	spec = spec.withDefaults()
	subjectID := table.NormalizeSubjectID(spec.Mouse)
	files := &SessionFiles{
		Spec:          spec,
		SubjectID:     subjectID,
		SubjectFolder: filepath.Join(g.baseDir, subjectID),
	}
	files.SessionFolder = filepath.Join(files.SubjectFolder, spec.Experiment)
	rawDir := filepath.Join(files.SessionFolder, "raw")
	if err := os.MkdirAll(rawDir, 0755); err != nil {
		return nil, err
	}

	files.TTL = filepath.Join(rawDir, TTLFile)
	if err := ttl.WriteFile(files.TTL, spec.Start, ttlSeries(spec)); err != nil {
		return nil, err
	}

	files.GreenImaging = filepath.Join(rawDir, GreenImaging)
	files.RedImaging = filepath.Join(rawDir, RedImaging)
	for _, s := range []struct {
		path string
		base uint16
	}{{files.GreenImaging, 0}, {files.RedImaging, 1000}} {
		if err := imaging.WriteFile(s.path, spec.Shape, spec.Rate, stackFrames(spec, s.base)); err != nil {
			return nil, err
		}
	}

	files.Processed = filepath.Join(files.SessionFolder, ProcessedName(subjectID, spec.Experiment))
	if err := writeProcessed(files.Processed, spec); err != nil {
		return nil, err
	}

	files.FiberTable = filepath.Join(files.SubjectFolder, FiberTable)
	if err := writeFiberTable(files.FiberTable, spec.Fibers); err != nil {
		return nil, err
	}
	return files, nil
}

// ProcessedName is the processed document name of a session.
func ProcessedName(subjectID, experiment string) string {
	return subjectID + "_" + experiment + ".json"
}

// InterleavedStack writes one stack holding both channels' frames
// alternately, green first, and returns its path.
func (g *TestDataGenerator) InterleavedStack(files *SessionFiles, name string) (string, error) {
	spec := files.Spec
	green, red := stackFrames(spec, 0), stackFrames(spec, 1000)
	frames := make([]model.Frame, 0, 2*spec.Frames)
	for i := range green {
		frames = append(frames, green[i], red[i])
	}
	path := filepath.Join(files.SessionFolder, "raw", name)
	return path, imaging.WriteFile(path, spec.Shape, 2*spec.Rate, frames)
}

// edgeTimes places channel pulses every 1/Rate seconds after Lead; the red
// channel runs half a period behind the green one.
func edgeTimes(spec SessionSpec, channel int) []float64 {
	spec = spec.withDefaults()
	period := 1 / spec.Rate
	out := make([]float64, spec.Frames)
	for i := range out {
		t := spec.Lead + float64(i)*period + float64(channel)*period/2
		// Edges land on the TTL sample grid.
		out[i] = math.Round(t*spec.TTLRate) / spec.TTLRate
	}
	return out
}

func ttlSeries(spec SessionSpec) []model.RawChannelSeries {
	duration := spec.Lead + float64(spec.Frames+1)/spec.Rate + 0.5
	total := int(math.Ceil(duration * spec.TTLRate))
	width := int(spec.TTLRate / spec.Rate / 8)
	if width < 1 {
		width = 1
	}

	pulse := func(values []float64, edges []float64) {
		if spec.NoPulses {
			return
		}
		for _, e := range edges {
			start := int(math.Round(e * spec.TTLRate))
			for j := start; j < start+width && j < len(values); j++ {
				values[j] = 5
			}
		}
	}

	ttlIn1 := make([]float64, total)
	ttlIn2 := make([]float64, total)
	pulse(ttlIn1, edgeTimes(spec, 0))
	if spec.SharedTTL {
		pulse(ttlIn1, edgeTimes(spec, 1))
	} else {
		pulse(ttlIn2, edgeTimes(spec, 1))
	}

	wheel := make([]float64, total)
	for i := range wheel {
		wheel[i] = math.Round(100*math.Sin(float64(i)/spec.TTLRate)) / 100
	}

	return []model.RawChannelSeries{
		{Name: "ttlIn1", Values: ttlIn1, SampleRate: spec.TTLRate},
		{Name: "ttlIn2", Values: ttlIn2, SampleRate: spec.TTLRate},
		{Name: WheelChannel, Values: wheel, SampleRate: spec.TTLRate},
	}
}

func stackFrames(spec SessionSpec, base uint16) []model.Frame {
	pixels := spec.Shape.Width * spec.Shape.Height
	frames := make([]model.Frame, spec.Frames)
	for i := range frames {
		frame := make(model.Frame, pixels)
		for p := range frame {
			frame[p] = base + uint16(i)
		}
		frames[i] = frame
	}
	return frames
}

// Fluorescence returns the generated trace of one fiber: channel*1000 +
// frame*10 + fiber.
func Fluorescence(channel, frame, fiber int) float64 {
	return float64(channel*1000 + frame*10 + fiber)
}

func writeProcessed(path string, spec SessionSpec) error {
	doc := make(map[string]any)
	for ch, names := range [][3]string{{GreenField, GreenBehavior, GreenIndex}, {RedField, RedBehavior, RedIndex}} {
		data := make([][]float64, spec.Frames)
		speed := make([]float64, spec.Frames)
		stamps := make([]float64, spec.Frames)
		for i := range data {
			data[i] = make([]float64, spec.Fibers)
			for f := range data[i] {
				data[i][f] = Fluorescence(ch, i, f)
			}
			speed[i] = float64(i) / 10
			stamps[i] = float64(i) / spec.Rate
		}
		rois := make([]model.ROI, spec.Fibers)
		for f := range rois {
			rois[f] = model.ROI{ID: f + 1, X: float64(10 * (f + 1)), Y: 20, Radius: 4}
		}
		doc[names[0]] = map[string]any{"data": data, "rois": rois}
		doc[names[1]] = map[string]any{"timestamp": stamps, "speed": speed}
		doc[names[2]] = []int{spec.Window[0], spec.Window[1]}
	}

	data, err := sonic.ConfigStd.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeFiberTable(path string, fibers int) error {
	rows := [][]string{{table.ColFiber, table.ColRegion, table.ColAP, table.ColML, table.ColDV, table.ColIncluded}}
	for f := 0; f < fibers; f++ {
		included := "true"
		if f == 1 {
			included = "false"
		}
		rows = append(rows, []string{
			strconv.Itoa(f + 1), "DMS",
			fmt.Sprintf("%.2f", 0.5+0.1*float64(f)), "1.50", "-2.75", included,
		})
	}
	return writeCSV(path, rows)
}

// ManifestHeader is the column order of generated session manifests.
var ManifestHeader = []string{
	table.ColMouse, table.ColExperimentDirectory, table.ColProcessedDataFile, table.ColRawBehaviorFile,
	"Raw Imaging File: green", "Processed Photometry Field: green", "Processed Behavior Field: green",
	"Processed Index Field: green", "LED Excitation Wavelength (nm): green", "Relevant Injected Sensor: green",
	"Raw Imaging File: red", "Processed Photometry Field: red", "Processed Behavior Field: red",
	"Processed Index Field: red", "LED Excitation Wavelength (nm): red", "Relevant Injected Sensor: red",
}

// WriteManifest writes a session manifest with one row per session.
func (g *TestDataGenerator) WriteManifest(name string, sessions ...*SessionFiles) (string, error) {
	rows := [][]string{ManifestHeader}
	for _, s := range sessions {
		rows = append(rows, []string{
			s.Spec.Mouse, s.Spec.Experiment, filepath.Base(s.Processed), TTLFile,
			GreenImaging, GreenField, GreenBehavior, GreenIndex, "470", GreenSensor,
			RedImaging, RedField, RedBehavior, RedIndex, "570", RedSensor,
		})
	}
	path := filepath.Join(g.baseDir, name)
	return path, writeCSV(path, rows)
}

// WriteSubjects writes a subject table for mice.
func (g *TestDataGenerator) WriteSubjects(name string, mice ...string) (string, error) {
	rows := [][]string{{table.ColMouse, table.ColSex, table.ColDateOfBirth, table.ColGenotype, table.ColStrain}}
	for _, m := range mice {
		rows = append(rows, []string{m, "F", "2023-09-01", "ChAT-cre", "C57BL/6J"})
	}
	path := filepath.Join(g.baseDir, name)
	return path, writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// CleanupTestData removes all generated test data
func (g *TestDataGenerator) CleanupTestData() error {
	return os.RemoveAll(g.baseDir)
}
