package convert

import (
	"fmt"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// SingleWavelengthParams describes a session imaged at one excitation
// wavelength.
type SingleWavelengthParams struct {
	RawImagingFilePath     string
	TTLFilePath            string
	TTLStreamName          string
	FiberLocationsFilePath string
	ExcitationWavelengthNM int
	Indicator              string
	ProcessedDataFilePath  string
	FiberPhotometryField   string
	BehaviorField          string
	IndexField             string
	NWBFilePath            string
	// SamplingFrequency is the declared frame rate. Zero falls back to the
	// rate stored in the imaging file, then to inference from TTL pulses.
	SamplingFrequency float64
	StubTest          bool
	Overwrite         bool
	// RawBehavior names TTL-file channels resampled at the frame times.
	RawBehavior []string
	Subject     *model.SubjectMetadata
	// SubjectID and SessionID default to the processed file's grandparent
	// and parent folder names.
	SubjectID string
	SessionID string
}

// DualWavelengthParams describes a session imaged at two alternating
// excitation wavelengths. Every slice holds the first then the second
// channel. Both imaging paths may name the same interleaved stack, and both
// TTL stream names may name the same interleaved pulse train.
type DualWavelengthParams struct {
	RawImagingFilePaths     []string
	TTLFilePath             string
	TTLStreamNames          []string
	FiberLocationsFilePath  string
	ExcitationWavelengthsNM []int
	Indicators              []string
	ProcessedDataFilePath   string
	FiberPhotometryFields   []string
	// BehaviorFields[0] is used; the second channel's behavior is taken
	// from the first.
	BehaviorFields    []string
	IndexFields       []string
	NWBFilePath       string
	SamplingFrequency float64
	StubTest          bool
	Overwrite         bool
	RawBehavior       []string
	Subject           *model.SubjectMetadata
	SubjectID         string
	SessionID         string
}

// BatchParams describes a manifest-driven conversion.
type BatchParams struct {
	DataTablePath string
	// SubjectsTablePath is optional; without it subjects carry only ids.
	SubjectsTablePath string
	FolderPath        string
	NWBFileFolderPath string
	SubjectIDs        []string
	StubTest          bool
	Overwrite         bool
	Concurrency       int
	// SkipUnchanged skips sessions the ledger already converted from the
	// same inputs.
	SkipUnchanged bool
	RunID         string
}

// channelSpec is one wavelength channel of a session, however described.
type channelSpec struct {
	imagingPath   string
	ttlStream     string
	wavelengthNM  int
	indicator     string
	field         string
	behaviorField string
	indexField    string
}

// sessionSpec is the common form of single and dual conversions.
type sessionSpec struct {
	channels      []channelSpec
	ttlPath       string
	processedPath string
	fibersPath    string
	outputPath    string
	rate          float64
	stub          bool
	overwrite     bool
	rawBehavior   []string
	subject       *model.SubjectMetadata
	subjectID     string
	sessionID     string
}

func (p SingleWavelengthParams) spec() sessionSpec {
	return sessionSpec{
		channels: []channelSpec{{
			imagingPath:   p.RawImagingFilePath,
			ttlStream:     p.TTLStreamName,
			wavelengthNM:  p.ExcitationWavelengthNM,
			indicator:     p.Indicator,
			field:         p.FiberPhotometryField,
			behaviorField: p.BehaviorField,
			indexField:    p.IndexField,
		}},
		ttlPath:       p.TTLFilePath,
		processedPath: p.ProcessedDataFilePath,
		fibersPath:    p.FiberLocationsFilePath,
		outputPath:    p.NWBFilePath,
		rate:          p.SamplingFrequency,
		stub:          p.StubTest,
		overwrite:     p.Overwrite,
		rawBehavior:   p.RawBehavior,
		subject:       p.Subject,
		subjectID:     p.SubjectID,
		sessionID:     p.SessionID,
	}
}

func (p DualWavelengthParams) spec() (sessionSpec, error) {
	lists := []struct {
		name string
		n    int
	}{
		{"raw imaging file paths", len(p.RawImagingFilePaths)},
		{"TTL stream names", len(p.TTLStreamNames)},
		{"excitation wavelengths", len(p.ExcitationWavelengthsNM)},
		{"indicators", len(p.Indicators)},
		{"fiber photometry fields", len(p.FiberPhotometryFields)},
		{"index fields", len(p.IndexFields)},
	}
	for _, l := range lists {
		if l.n != 2 {
			return sessionSpec{}, fmt.Errorf("dual-wavelength sessions need two %s, got %d", l.name, l.n)
		}
	}
	if n := len(p.BehaviorFields); n > 2 {
		return sessionSpec{}, fmt.Errorf("dual-wavelength sessions take at most two behavior fields, got %d", n)
	}

	s := sessionSpec{
		ttlPath:       p.TTLFilePath,
		processedPath: p.ProcessedDataFilePath,
		fibersPath:    p.FiberLocationsFilePath,
		outputPath:    p.NWBFilePath,
		rate:          p.SamplingFrequency,
		stub:          p.StubTest,
		overwrite:     p.Overwrite,
		rawBehavior:   p.RawBehavior,
		subject:       p.Subject,
		subjectID:     p.SubjectID,
		sessionID:     p.SessionID,
	}
	for i := 0; i < 2; i++ {
		ch := channelSpec{
			imagingPath:  p.RawImagingFilePaths[i],
			ttlStream:    p.TTLStreamNames[i],
			wavelengthNM: p.ExcitationWavelengthsNM[i],
			indicator:    p.Indicators[i],
			field:        p.FiberPhotometryFields[i],
			indexField:   p.IndexFields[i],
		}
		if i == 0 && len(p.BehaviorFields) > 0 {
			ch.behaviorField = p.BehaviorFields[0]
		}
		s.channels = append(s.channels, ch)
	}
	return s, nil
}
