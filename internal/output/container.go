// Package output writes assembled sessions as JSON containers laid out
// like an NWB file, with imaging frames in raw-stack sidecar files.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

const (
	FormatVersion = "1"
	// Extension is appended to every container file name.
	Extension = ".nwb.json"
	// StubPrefix marks containers written from stub-mode conversions.
	StubPrefix       = "stub-"
	sidecarExt       = ".rawstack"
	behaviorModule   = "behavior"
	fluorescenceUnit = "a.u."
)

// Series is one time series of the container. Exactly one of Data, Matrix
// or ExternalFile carries the values.
type Series struct {
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Unit          string      `json:"unit,omitempty"`
	Rate          float64     `json:"rate,omitempty"`
	RateInferred  bool        `json:"rate_inferred,omitempty"`
	StartingFrame int         `json:"starting_frame"`
	Timestamps    []float64   `json:"timestamps"`
	Data          []float64   `json:"data,omitempty"`
	Matrix        [][]float64 `json:"matrix,omitempty"`
	ExternalFile  string      `json:"external_file,omitempty"`
	FrameCount    int         `json:"frame_count,omitempty"`
	FrameShape    []int       `json:"frame_shape,omitempty"`
}

// Len is the number of samples the series holds.
func (s Series) Len() int {
	switch {
	case s.ExternalFile != "":
		return s.FrameCount
	case s.Matrix != nil:
		return len(s.Matrix)
	default:
		return len(s.Data)
	}
}

// Ophys is the processing/ophys module.
type Ophys struct {
	ResponseSeries map[string]Series      `json:"fiber_photometry_response_series"`
	ROIs           map[string][]model.ROI `json:"rois,omitempty"`
	FiberTable     []model.FiberLocation  `json:"fiber_table,omitempty"`
	AcceptedFibers []int                  `json:"accepted_fibers,omitempty"`
}

// Processing holds the processing modules.
type Processing struct {
	Ophys    Ophys             `json:"ophys"`
	Behavior map[string]Series `json:"behavior,omitempty"`
}

// Container is the on-disk document of one session.
type Container struct {
	FormatVersion    string                 `json:"format_version"`
	Identifier       string                 `json:"identifier"`
	SubjectID        string                 `json:"subject_id"`
	SessionID        string                 `json:"session_id"`
	SessionStartTime time.Time              `json:"session_start_time"`
	ExcitationMode   string                 `json:"excitation_mode"`
	General          map[string]any         `json:"general"`
	Subject          *model.SubjectMetadata `json:"subject,omitempty"`
	Acquisition      map[string]Series      `json:"acquisition"`
	Processing       Processing             `json:"processing"`
	Timebase         model.Timebase         `json:"timebase"`
	Warnings         []string               `json:"warnings,omitempty"`
}

// AllSeries returns every series keyed by "<module>/<name>", sorted by key.
func (c *Container) AllSeries() ([]string, map[string]Series) {
	all := make(map[string]Series)
	for name, s := range c.Acquisition {
		all["acquisition/"+name] = s
	}
	for name, s := range c.Processing.Ophys.ResponseSeries {
		all["processing/ophys/"+name] = s
	}
	for name, s := range c.Processing.Behavior {
		all["processing/behavior/"+name] = s
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, all
}

// Identifier derives a stable identifier for a subject/session pair.
func Identifier(subjectID, sessionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("go-photometry-sync:"+subjectID+"/"+sessionID)).String()
}

// FileName is the container name for a session: <subject>_<session>.nwb.json,
// prefixed with stub- in stub mode.
func FileName(subjectID, sessionID string, stub bool) string {
	name := subjectID + "_" + sessionID + Extension
	if stub {
		name = StubPrefix + name
	}
	return name
}

// SidecarPath is the raw-stack file holding one imaging series of the
// container at containerPath.
func SidecarPath(containerPath, series string) string {
	base := strings.TrimSuffix(containerPath, Extension)
	return base + "." + series + sidecarExt
}

// FromRecord lays out record as a container. sidecars maps imaging series
// names to their sidecar paths.
func FromRecord(record *model.SessionRecord, sidecars map[string]string) *Container {
	c := &Container{
		FormatVersion:    FormatVersion,
		Identifier:       Identifier(record.SubjectID, record.SessionID),
		SubjectID:        record.SubjectID,
		SessionID:        record.SessionID,
		SessionStartTime: record.SessionStartTime,
		ExcitationMode:   record.ExcitationMode,
		General:          record.Metadata,
		Subject:          record.Subject,
		Acquisition:      make(map[string]Series),
		Processing: Processing{
			Ophys: Ophys{
				ResponseSeries: make(map[string]Series),
				ROIs:           make(map[string][]model.ROI),
				FiberTable:     record.Fibers,
			},
		},
		Timebase: record.Timebase,
		Warnings: record.Warnings,
	}

	for _, ch := range record.Channels {
		suffix, _ := ch.Channel.SeriesSuffix()
		fl := ch.Fluorescence
		c.Processing.Ophys.ResponseSeries[fl.Name] = Series{
			Name:          fl.Name,
			Description:   fmt.Sprintf("%s fluorescence, %d nm excitation", ch.Channel.Indicator, ch.Channel.WavelengthNM),
			Unit:          fluorescenceUnit,
			Rate:          ch.Rate,
			RateInferred:  ch.RateInferred,
			StartingFrame: fl.SourceFirst,
			Timestamps:    fl.Timestamps,
			Matrix:        fl.Values,
		}
		if len(ch.ROIs) > 0 {
			c.Processing.Ophys.ROIs[fl.Name] = ch.ROIs
		}
		if c.Processing.Ophys.AcceptedFibers == nil {
			c.Processing.Ophys.AcceptedFibers = ch.AcceptedFibers
		}

		if img := ch.Imaging; img != nil {
			c.Acquisition[img.Name] = Series{
				Name:          img.Name,
				Description:   fmt.Sprintf("Raw imaging, %d nm excitation", ch.Channel.WavelengthNM),
				Unit:          "n.a.",
				Rate:          ch.Rate,
				RateInferred:  ch.RateInferred,
				StartingFrame: img.SourceFirst,
				Timestamps:    img.Timestamps,
				ExternalFile:  filepath.Base(sidecars[img.Name]),
				FrameCount:    img.Len(),
				FrameShape:    []int{ch.FrameShape.Height, ch.FrameShape.Width},
			}
		}

		for _, b := range ch.Behavior {
			name := b.Name
			if _, taken := c.Processing.Behavior[name]; taken {
				name += suffix
			}
			if c.Processing.Behavior == nil {
				c.Processing.Behavior = make(map[string]Series)
			}
			c.Processing.Behavior[name] = Series{
				Name:          name,
				Description:   "Behavioral signal aligned to " + fl.Name,
				Unit:          "n.a.",
				StartingFrame: b.SourceFirst,
				Timestamps:    b.Timestamps,
				Data:          b.Values,
			}
		}
	}
	return c
}

// ReadContainer loads a container written by Writer.
func ReadContainer(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	var c Container
	if err := sonic.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode container %s: %w", path, err)
	}
	return &c, nil
}
