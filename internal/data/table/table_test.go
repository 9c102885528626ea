package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestCSV = `Mouse,Experiment Directory,Processed Data File,Raw Behavior File,Raw Imaging File: green,Raw Imaging File: red,Processed Photometry Field: green,Processed Photometry Field: red,Processed Behavior Field: green,Processed Behavior Field: red,Processed Index Field: green,Processed Index Field: red,LED Excitation Wavelength (nm): green,LED Excitation Wavelength (nm): red,Relevant Injected Sensor: green,Relevant Injected Sensor: red
UG-27,240214,UG27_240214.json,bb1.edf,data11.stack,data89.stack,ACh,DA,behav_ACh,behav_DA,ACh_idx,DA_idx,470,570,AAV9-hSyn-GRAB-ACh3.0,AAV5-CAG-rDA3m
UG-27,240214,UG27_240214.json,bb1.edf,data12.stack,data90.stack,ACh,DA,behav_ACh,behav_DA,ACh_idx,DA_idx,470,570,AAV9-hSyn-GRAB-ACh3.0,AAV5-CAG-rDA3m

UG28,240301,UG28_240301.json,bb2.edf,data1.stack,data2.stack,ACh,DA,behav_ACh,behav_DA,ACh_idx,DA_idx,470,570,AAV9-hSyn-GRAB-ACh3.0,AAV5-CAG-rDA3m
UG-27,240215,UG27_240215.json,bb3.edf,data5.stack,data6.stack,ACh,DA,behav_ACh,behav_DA,ACh_idx,DA_idx,470.0,570,AAV9-hSyn-GRAB-ACh3.0,AAV5-CAG-rDA3m
`

func TestParseManifest(t *testing.T) {
	rows, err := Decode(strings.NewReader(manifestCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	manifest, err := ParseManifest(rows)
	require.NoError(t, err)

	first := manifest[0]
	assert.Equal(t, "UG-27", first.Mouse)
	assert.Equal(t, "UG27", first.SubjectID())
	assert.Equal(t, "240214", first.ExperimentDirectory)
	assert.Equal(t, "bb1.edf", first.RawBehaviorFile)
	assert.Equal(t, 470, first.Green.WavelengthNM)
	assert.Equal(t, 570, first.Red.WavelengthNM)
	assert.Equal(t, "ACh3.0", first.Green.Indicator())
	assert.Equal(t, "rDA3m", first.Red.Indicator())
	assert.Equal(t, "data89.stack", first.Red.RawImagingFile)
	assert.Equal(t, 470, manifest[3].Green.WavelengthNM)
}

func TestGroupSessions(t *testing.T) {
	rows, err := Decode(strings.NewReader(manifestCSV))
	require.NoError(t, err)
	manifest, err := ParseManifest(rows)
	require.NoError(t, err)

	groups, err := GroupSessions(manifest, []string{"UG-27"})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, ManifestKey{Mouse: "UG-27", ExperimentDirectory: "240214"}, groups[0].Key)
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, "data11.stack", groups[0].First().Green.RawImagingFile)
	assert.Equal(t, "240215", groups[1].Key.ExperimentDirectory)

	_, err = GroupSessions(manifest, []string{"UG99"})
	assert.ErrorContains(t, err, "no sessions found for the provided subject IDs")
}

func TestParseManifestMissingColumns(t *testing.T) {
	rows, err := Decode(strings.NewReader("Mouse,Experiment Directory\nUG27,240214\n"))
	require.NoError(t, err)

	_, err = ParseManifest(rows)
	assert.ErrorContains(t, err, "missing columns")
}

func TestIndicatorFromAAV(t *testing.T) {
	tests := []struct {
		aav      string
		expected string
	}{
		{"AAV9-hSyn-GRAB-ACh3.0", "ACh3.0"},
		{"AAV5-CAG-rDA3m", "rDA3m"},
		{"GCaMP6f", "GCaMP6f"},
		{"trailing-", "trailing-"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.aav, func(t *testing.T) {
			assert.Equal(t, tt.expected, IndicatorFromAAV(tt.aav))
		})
	}
}

func TestParseSubjects(t *testing.T) {
	csv := "Mouse,Sex,Date of Birth,Genotype,Strain\nUG-27,male,2023-10-01,WT,C57BL/6J\nUG28,F,11/15/2023,,\n"
	rows, err := Decode(strings.NewReader(csv))
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	subjects, err := ParseSubjects(rows, loc)
	require.NoError(t, err)

	ug27 := subjects["UG-27"]
	assert.Equal(t, "UG27", ug27.SubjectID)
	assert.Equal(t, "M", ug27.Sex)
	assert.Equal(t, "Mus musculus", ug27.Species)
	assert.Equal(t, time.Date(2023, 10, 1, 0, 0, 0, 0, loc), ug27.DateOfBirth)

	ug28 := subjects["UG28"]
	assert.Equal(t, "F", ug28.Sex)
	assert.Equal(t, 15, ug28.DateOfBirth.Day())
}

func TestParseSubjectsBadDate(t *testing.T) {
	rows, err := Decode(strings.NewReader("Mouse,Date of Birth\nUG27,someday\n"))
	require.NoError(t, err)

	_, err = ParseSubjects(rows, nil)
	assert.Error(t, err)
}

func TestParseFiberLocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiber_table.csv")
	content := "Fiber,Region,AP,ML,DV,Included\n1,DMS,0.5,1.5,-3.0,yes\n2,DLS,0.5,2.5,-3.2,no\n3,NAc,1.2,1.0,-4.1,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rows, err := ReadRows(path)
	require.NoError(t, err)
	fibers, err := ParseFiberLocations(rows)
	require.NoError(t, err)
	require.Len(t, fibers, 3)

	assert.Equal(t, "DMS", fibers[0].Region)
	assert.InDelta(t, -3.2, fibers[1].DV, 1e-9)
	assert.False(t, fibers[1].Included)
	assert.Equal(t, []int{0, 2}, AcceptedFibers(fibers))
}

func TestParseFiberLocationsInvalidFlag(t *testing.T) {
	rows, err := Decode(strings.NewReader("Fiber,Region,AP,ML,DV,Included\n1,DMS,0,0,0,maybe\n"))
	require.NoError(t, err)

	_, err = ParseFiberLocations(rows)
	assert.Error(t, err)
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffA,B\n1\n"), 0644))

	rows, err := NewReader().ReadTable(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{"A": "1", "B": ""}, rows[0])
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	assert.Error(t, err)
}
