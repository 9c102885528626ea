package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

type TableFormatter struct {
	w     io.Writer
	color bool
}

func NewTableFormatter(w io.Writer, color bool) *TableFormatter {
	return &TableFormatter{w: w, color: color}
}

func (f *TableFormatter) FormatOutcomes(outcomes []model.Outcome) error {
	return f.render(OutcomeGrid(outcomes))
}

func (f *TableFormatter) FormatRuns(runs []ledger.Run) error {
	return f.render(RunGrid(runs))
}

func (f *TableFormatter) render(g Grid) error {
	widths := columnWidths(g)

	var b strings.Builder
	writeBorder(&b, widths, "top")
	f.writeRow(&b, g, g.Headers, widths, true)
	writeBorder(&b, widths, "middle")
	for _, row := range g.Rows {
		f.writeRow(&b, g, row, widths, false)
	}
	writeBorder(&b, widths, "bottom")

	_, err := io.WriteString(f.w, b.String())
	return err
}

// columnWidths sizes each column to its widest cell in display cells.
func columnWidths(g Grid) []int {
	widths := make([]int, len(g.Headers))
	for i, h := range g.Headers {
		widths[i] = util.GetDisplayWidth(h)
	}
	for _, row := range g.Rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func writeBorder(b *strings.Builder, widths []int, kind string) {
	var left, middle, right string
	switch kind {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	default:
		left, middle, right = "└", "┴", "┘"
	}

	b.WriteString(left)
	for i, width := range widths {
		b.WriteString(strings.Repeat("─", width+2)) // +2 for padding spaces
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	b.WriteString("\n")
}

func (f *TableFormatter) writeRow(b *strings.Builder, g Grid, values []string, widths []int, header bool) {
	b.WriteString("│")
	for i, value := range values {
		var cell string
		if g.Numeric[i] && !header {
			cell = runewidth.FillLeft(value, widths[i])
		} else {
			cell = runewidth.FillRight(value, widths[i])
		}
		// Color after padding so escape codes do not count toward width.
		if i == g.StatusColumn && !header {
			cell = util.Colorize(cell, util.StatusColor(value), f.color)
		}
		fmt.Fprintf(b, " %s │", cell)
	}
	b.WriteString("\n")
}
