package model

import "time"

// ROI is the geometry of one fiber's region of interest on the camera.
type ROI struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// FiberLocation is one row of the fiber location table.
type FiberLocation struct {
	Fiber    int     `json:"fiber"`
	Region   string  `json:"region"`
	AP       float64 `json:"ap_mm"`
	ML       float64 `json:"ml_mm"`
	DV       float64 `json:"dv_mm"`
	Included bool    `json:"included"`
}

// SubjectMetadata describes the animal.
type SubjectMetadata struct {
	SubjectID   string    `json:"subject_id"`
	Species     string    `json:"species,omitempty"`
	Strain      string    `json:"strain,omitempty"`
	Sex         string    `json:"sex,omitempty"`
	Genotype    string    `json:"genotype,omitempty"`
	DateOfBirth time.Time `json:"date_of_birth,omitempty"`
}

// Timebase is the shared clock of a session: the merged frame times of all
// channels after windowing, on the behavioral acquisition clock.
type Timebase struct {
	Timestamps   []float64 `json:"timestamps"`
	Rate         float64   `json:"rate"`
	RateInferred bool      `json:"rate_inferred"`
	OverlapStart float64   `json:"overlap_start"`
	OverlapStop  float64   `json:"overlap_stop"`
}

// ChannelRecord holds everything aligned for one wavelength channel.
type ChannelRecord struct {
	Channel        WavelengthChannel        `json:"channel"`
	TTLStream      string                   `json:"ttl_stream"`
	Window         InclusionWindow          `json:"window"`
	TotalFrames    int                      `json:"total_frames"`
	Rate           float64                  `json:"rate"`
	RateInferred   bool                     `json:"rate_inferred"`
	Fluorescence   AlignedStream[[]float64] `json:"fluorescence"`
	Imaging        *AlignedStream[Frame]    `json:"imaging,omitempty"`
	FrameShape     FrameShape               `json:"frame_shape"`
	Behavior       []AlignedStream[float64] `json:"behavior,omitempty"`
	ROIs           []ROI                    `json:"rois,omitempty"`
	AcceptedFibers []int                    `json:"accepted_fibers,omitempty"`
	TimingOutliers []int                    `json:"timing_outliers,omitempty"`
}

// Timestamps are the windowed frame times of the channel.
func (c ChannelRecord) Timestamps() []float64 {
	return c.Fluorescence.Timestamps
}

// SessionRecord is the assembled unit for one subject/session. It is built
// once and not mutated afterwards.
type SessionRecord struct {
	SubjectID        string           `json:"subject_id"`
	SessionID        string           `json:"session_id"`
	SessionStartTime time.Time        `json:"session_start_time"`
	ExcitationMode   string           `json:"excitation_mode"`
	Timebase         Timebase         `json:"timebase"`
	Channels         []ChannelRecord  `json:"channels"`
	Fibers           []FiberLocation  `json:"fibers,omitempty"`
	Subject          *SubjectMetadata `json:"subject,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// IsDual reports whether the session has two wavelength channels.
func (r *SessionRecord) IsDual() bool {
	return len(r.Channels) == 2
}
