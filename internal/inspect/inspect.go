// Package inspect checks written containers for timing and metadata
// problems and writes the per-session inspection report.
package inspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/penwyp/go-photometry-sync/internal/output"
)

// Severity orders findings, most important first.
type Severity int

const (
	Critical Severity = iota
	Violation
	Suggestion
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "CRITICAL"
	case Violation:
		return "BEST_PRACTICE_VIOLATION"
	default:
		return "BEST_PRACTICE_SUGGESTION"
	}
}

// Finding is one problem found in a container.
type Finding struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Location string   `json:"location"`
	Message  string   `json:"message"`
}

// HasCritical reports whether any finding is critical.
func HasCritical(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == Critical {
			return true
		}
	}
	return false
}

var requiredGeneral = []string{"session_description", "institution", "lab", "experimenter"}

// Inspect runs every check against c. Findings are sorted by severity,
// then location.
func Inspect(c *output.Container) []Finding {
	var findings []Finding
	add := func(sev Severity, check, location, format string, args ...any) {
		findings = append(findings, Finding{Severity: sev, Check: check, Location: location, Message: fmt.Sprintf(format, args...)})
	}

	if c.SessionStartTime.IsZero() {
		add(Critical, "check_session_start_time", "/", "session start time is missing")
	}

	keys, series := c.AllSeries()
	if len(c.Processing.Ophys.ResponseSeries) == 0 {
		add(Critical, "check_response_series", "processing/ophys", "no fiber photometry response series")
	}
	for _, key := range keys {
		s := series[key]
		if s.Len() == 0 {
			add(Violation, "check_empty_series", key, "series has no data")
			continue
		}
		if s.Len() != len(s.Timestamps) {
			add(Critical, "check_timestamps_match_first_dimension", key,
				"data has %d samples but %d timestamps", s.Len(), len(s.Timestamps))
		}
		if i := firstNonIncreasing(s.Timestamps); i > 0 {
			add(Critical, "check_timestamps_ascending", key,
				"timestamp %d (%.6f) does not follow %.6f", i, s.Timestamps[i], s.Timestamps[i-1])
		}
		if s.RateInferred {
			add(Suggestion, "check_rate_inferred", key, "frame rate %.3f Hz was inferred from TTL pulses", s.Rate)
		}
	}

	if c.Timebase.OverlapStart > c.Timebase.OverlapStop {
		add(Critical, "check_shared_time_window", "timebase",
			"overlap [%.4f, %.4f] is empty", c.Timebase.OverlapStart, c.Timebase.OverlapStop)
	}

	general, _ := c.General["NWBFile"].(map[string]any)
	for _, key := range requiredGeneral {
		if isEmpty(general[key]) {
			add(Violation, "check_missing_metadata", "general/"+key, "%s is not set", key)
		}
	}
	if c.Subject == nil {
		add(Violation, "check_subject_exists", "general/subject", "subject metadata is missing")
	} else {
		if c.Subject.Species == "" {
			add(Violation, "check_subject_species_exists", "general/subject", "species is not set")
		}
		if c.Subject.Sex == "" || c.Subject.Sex == "U" {
			add(Suggestion, "check_subject_sex", "general/subject", "sex is unknown")
		}
		if c.Subject.DateOfBirth.IsZero() {
			add(Suggestion, "check_subject_age", "general/subject", "date of birth is not set")
		}
	}

	for _, w := range c.Warnings {
		add(Suggestion, "check_alignment_warnings", "/", "%s", w)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity < findings[j].Severity
		}
		return findings[i].Location < findings[j].Location
	})
	return findings
}

func firstNonIncreasing(ts []float64) int {
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			return i
		}
	}
	return 0
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	default:
		return false
	}
}
