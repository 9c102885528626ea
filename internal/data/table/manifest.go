package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Session manifest columns.
const (
	ColMouse               = "Mouse"
	ColExperimentDirectory = "Experiment Directory"
	ColProcessedDataFile   = "Processed Data File"
	ColRawBehaviorFile     = "Raw Behavior File"
)

// Channel labels used as column suffixes.
const (
	LabelGreen = "green"
	LabelRed   = "red"
)

// ChannelColumns is the per-wavelength part of a manifest row.
type ChannelColumns struct {
	RawImagingFile  string
	PhotometryField string
	BehaviorField   string
	IndexField      string
	WavelengthNM    int
	InjectedSensor  string
}

// Indicator derives the indicator name from the injected construct,
// e.g. "AAV9-hSyn-GRAB-ACh3.0" gives "ACh3.0".
func (c ChannelColumns) Indicator() string {
	return IndicatorFromAAV(c.InjectedSensor)
}

// ManifestRow is one row of the "Sessions" sheet.
type ManifestRow struct {
	Line                int
	Mouse               string
	ExperimentDirectory string
	ProcessedDataFile   string
	RawBehaviorFile     string
	Green               ChannelColumns
	Red                 ChannelColumns
}

// SubjectID is the mouse identifier with dashes removed, as used for
// folder and file names.
func (r ManifestRow) SubjectID() string {
	return NormalizeSubjectID(r.Mouse)
}

// Channels returns the green and red columns in acquisition order.
func (r ManifestRow) Channels() []ChannelColumns {
	return []ChannelColumns{r.Green, r.Red}
}

// NormalizeSubjectID removes dashes from a subject identifier.
func NormalizeSubjectID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// IndicatorFromAAV returns the last dash-separated token of an AAV
// construct string.
func IndicatorFromAAV(aav string) string {
	aav = strings.TrimSpace(aav)
	if i := strings.LastIndex(aav, "-"); i >= 0 && i < len(aav)-1 {
		return aav[i+1:]
	}
	return aav
}

func channelColumn(name, label string) string {
	return name + ": " + label
}

// ParseManifest converts session sheet rows.
func ParseManifest(rows []Row) ([]ManifestRow, error) {
	required := []string{ColMouse, ColExperimentDirectory, ColProcessedDataFile, ColRawBehaviorFile}
	for _, label := range []string{LabelGreen, LabelRed} {
		required = append(required,
			channelColumn("Raw Imaging File", label),
			channelColumn("Processed Photometry Field", label),
			channelColumn("Processed Behavior Field", label),
			channelColumn("Processed Index Field", label),
			channelColumn("LED Excitation Wavelength (nm)", label),
			channelColumn("Relevant Injected Sensor", label),
		)
	}
	if err := requireColumns(rows, required...); err != nil {
		return nil, err
	}

	out := make([]ManifestRow, 0, len(rows))
	for i, row := range rows {
		// Header is line 1.
		line := i + 2
		m := ManifestRow{
			Line:                line,
			Mouse:               row.Get(ColMouse),
			ExperimentDirectory: row.Get(ColExperimentDirectory),
			ProcessedDataFile:   row.Get(ColProcessedDataFile),
			RawBehaviorFile:     row.Get(ColRawBehaviorFile),
		}
		var err error
		if m.Green, err = parseChannel(row, LabelGreen); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m.Red, err = parseChannel(row, LabelRed); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseChannel(row Row, label string) (ChannelColumns, error) {
	c := ChannelColumns{
		RawImagingFile:  row.Get(channelColumn("Raw Imaging File", label)),
		PhotometryField: row.Get(channelColumn("Processed Photometry Field", label)),
		BehaviorField:   row.Get(channelColumn("Processed Behavior Field", label)),
		IndexField:      row.Get(channelColumn("Processed Index Field", label)),
		InjectedSensor:  row.Get(channelColumn("Relevant Injected Sensor", label)),
	}
	raw := row.Get(channelColumn("LED Excitation Wavelength (nm)", label))
	if raw == "" {
		return c, nil
	}
	nm, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return ChannelColumns{}, fmt.Errorf("invalid %s wavelength %q: %w", label, raw, err)
	}
	c.WavelengthNM = int(nm)
	return c, nil
}

// ManifestKey identifies a session: subject and experiment directory.
type ManifestKey struct {
	Mouse               string
	ExperimentDirectory string
}

// SessionGroup is the set of manifest rows describing one session. The
// first row is authoritative.
type SessionGroup struct {
	Key  ManifestKey
	Rows []ManifestRow
}

// First returns the describing row.
func (g SessionGroup) First() ManifestRow {
	return g.Rows[0]
}

// GroupSessions filters rows to subjects and groups them by subject and
// experiment directory, preserving first-appearance order.
func GroupSessions(rows []ManifestRow, subjects []string) ([]SessionGroup, error) {
	wanted := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		wanted[strings.TrimSpace(s)] = true
	}

	index := make(map[ManifestKey]int)
	var groups []SessionGroup
	for _, row := range rows {
		if !wanted[row.Mouse] {
			continue
		}
		key := ManifestKey{Mouse: row.Mouse, ExperimentDirectory: row.ExperimentDirectory}
		if i, ok := index[key]; ok {
			groups[i].Rows = append(groups[i].Rows, row)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, SessionGroup{Key: key, Rows: []ManifestRow{row}})
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("no sessions found for the provided subject IDs: %v", subjects)
	}
	return groups, nil
}
