package formatter

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
)

type CSVFormatter struct {
	w io.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{w: w}
}

// FormatOutcomes writes durations as seconds so the file sorts and sums.
func (f *CSVFormatter) FormatOutcomes(outcomes []model.Outcome) error {
	g := OutcomeGrid(outcomes)
	for i, o := range outcomes {
		g.Rows[i][5] = strconv.FormatFloat(o.Duration.Seconds(), 'f', 3, 64)
	}
	g.Headers = append([]string(nil), g.Headers...)
	g.Headers[5] = "Duration (s)"
	return f.write(g)
}

func (f *CSVFormatter) FormatRuns(runs []ledger.Run) error {
	g := RunGrid(runs)
	for i, r := range runs {
		// Full ids and plain counts for machine use.
		g.Rows[i][0] = r.ID
		g.Rows[i][4] = strconv.Itoa(r.Converted)
		g.Rows[i][5] = strconv.Itoa(r.Skipped)
		g.Rows[i][6] = strconv.Itoa(r.Failed)
	}
	return f.write(g)
}

func (f *CSVFormatter) write(g Grid) error {
	w := csv.NewWriter(f.w)
	if err := w.Write(g.Headers); err != nil {
		return err
	}
	if err := w.WriteAll(g.Rows); err != nil {
		return err
	}
	return w.Error()
}
