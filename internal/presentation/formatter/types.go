package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Formatter renders batch outcomes and run history.
type Formatter interface {
	FormatOutcomes(outcomes []model.Outcome) error
	FormatRuns(runs []ledger.Run) error
}

// New returns the formatter called name: table, json, csv or summary.
func New(name string, w io.Writer, color bool) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "table":
		return NewTableFormatter(w, color), nil
	case "json":
		return NewJSONFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	case "summary":
		return NewSummaryFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json, csv or summary)", name)
	}
}

// Grid is the tabular view shared by the table and CSV formatters.
type Grid struct {
	Headers []string
	Rows    [][]string
	// Numeric marks right-aligned columns.
	Numeric map[int]bool
	// StatusColumn is colored by outcome status, -1 for none.
	StatusColumn int
}

var outcomeHeaders = []string{"Subject", "Session", "Status", "Reason", "Warnings", "Duration", "Output"}

// OutcomeGrid lays out one row per session outcome.
func OutcomeGrid(outcomes []model.Outcome) Grid {
	g := Grid{
		Headers:      outcomeHeaders,
		Numeric:      map[int]bool{4: true, 5: true},
		StatusColumn: 2,
	}
	for _, o := range outcomes {
		g.Rows = append(g.Rows, []string{
			o.SubjectID,
			o.SessionID,
			string(o.Status),
			o.Reason,
			fmt.Sprintf("%d", o.Warnings),
			util.FormatDuration(o.Duration),
			o.OutputPath,
		})
	}
	return g
}

var runHeaders = []string{"Run", "Command", "Started", "Duration", "Converted", "Skipped", "Failed"}

// RunGrid lays out one row per ledger run.
func RunGrid(runs []ledger.Run) Grid {
	g := Grid{
		Headers:      runHeaders,
		Numeric:      map[int]bool{3: true, 4: true, 5: true, 6: true},
		StatusColumn: -1,
	}
	for _, r := range runs {
		duration := "running"
		if !r.FinishedAt.IsZero() {
			duration = util.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		g.Rows = append(g.Rows, []string{
			shortID(r.ID),
			r.Command,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			util.FormatNumber(r.Converted),
			util.FormatNumber(r.Skipped),
			util.FormatNumber(r.Failed),
		})
	}
	return g
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
