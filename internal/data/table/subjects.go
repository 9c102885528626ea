package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// Subject sheet columns.
const (
	ColSex         = "Sex"
	ColDateOfBirth = "Date of Birth"
	ColGenotype    = "Genotype"
	ColStrain      = "Strain"
	ColSpecies     = "Species"
)

const defaultSpecies = "Mus musculus"

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// ParseSubjects converts "Mice" sheet rows keyed by the raw mouse id.
// Dates of birth are interpreted in loc.
func ParseSubjects(rows []Row, loc *time.Location) (map[string]model.SubjectMetadata, error) {
	if err := requireColumns(rows, ColMouse); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	out := make(map[string]model.SubjectMetadata, len(rows))
	for i, row := range rows {
		mouse := row.Get(ColMouse)
		if mouse == "" {
			continue
		}
		s := model.SubjectMetadata{
			SubjectID: NormalizeSubjectID(mouse),
			Species:   row.Get(ColSpecies),
			Strain:    row.Get(ColStrain),
			Sex:       normalizeSex(row.Get(ColSex)),
			Genotype:  row.Get(ColGenotype),
		}
		if s.Species == "" {
			s.Species = defaultSpecies
		}
		if dob := row.Get(ColDateOfBirth); dob != "" {
			t, err := parseDate(dob, loc)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
			s.DateOfBirth = t
		}
		out[mouse] = s
	}
	return out, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

func normalizeSex(value string) string {
	switch strings.ToUpper(value) {
	case "M", "MALE":
		return "M"
	case "F", "FEMALE":
		return "F"
	case "":
		return ""
	default:
		return "U"
	}
}
