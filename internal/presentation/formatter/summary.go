package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// SummaryFormatter prints totals instead of one line per session.
type SummaryFormatter struct {
	w io.Writer
}

// NewSummaryFormatter creates a new instance of SummaryFormatter.
func NewSummaryFormatter(w io.Writer) *SummaryFormatter {
	return &SummaryFormatter{w: w}
}

// FormatOutcomes prints status counts and failures grouped by reason.
func (f *SummaryFormatter) FormatOutcomes(outcomes []model.Outcome) error {
	counts := make(map[model.OutcomeStatus]int)
	reasons := make(map[string][]string)
	var elapsed time.Duration
	warnings := 0
	for _, o := range outcomes {
		counts[o.Status]++
		elapsed += o.Duration
		warnings += o.Warnings
		if o.Status == model.StatusFailed {
			reasons[o.Reason] = append(reasons[o.Reason], o.Key())
		}
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("Conversion Summary\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if len(outcomes) == 0 {
		b.WriteString("No sessions selected\n\n")
		b.WriteString(strings.Repeat("=", 60) + "\n")
		_, err := io.WriteString(f.w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Sessions:   %s\n", util.FormatNumber(len(outcomes)))
	fmt.Fprintf(&b, "  Success:  %s\n", util.FormatNumber(counts[model.StatusSuccess]))
	fmt.Fprintf(&b, "  Skipped:  %s\n", util.FormatNumber(counts[model.StatusSkipped]))
	fmt.Fprintf(&b, "  Failed:   %s\n", util.FormatNumber(counts[model.StatusFailed]))
	fmt.Fprintf(&b, "Warnings:   %s\n", util.FormatNumber(warnings))
	fmt.Fprintf(&b, "Work time:  %s\n", util.FormatDuration(elapsed))

	if len(reasons) > 0 {
		b.WriteString("\nFailures:\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		names := make([]string, 0, len(reasons))
		for r := range reasons {
			names = append(names, r)
		}
		sort.Strings(names)
		for _, r := range names {
			fmt.Fprintf(&b, "%s (%d):\n", r, len(reasons[r]))
			for _, key := range reasons[r] {
				fmt.Fprintf(&b, "  %s\n", key)
			}
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	_, err := io.WriteString(f.w, b.String())
	return err
}

// FormatRuns prints totals across runs.
func (f *SummaryFormatter) FormatRuns(runs []ledger.Run) error {
	var converted, skipped, failed int
	for _, r := range runs {
		converted += r.Converted
		skipped += r.Skipped
		failed += r.Failed
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Runs:       %s\n", util.FormatNumber(len(runs)))
	fmt.Fprintf(&b, "Converted:  %s\n", util.FormatNumber(converted))
	fmt.Fprintf(&b, "Skipped:    %s\n", util.FormatNumber(skipped))
	fmt.Fprintf(&b, "Failed:     %s\n", util.FormatNumber(failed))
	if len(runs) > 0 {
		fmt.Fprintf(&b, "Latest:     %s\n", runs[0].StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	_, err := io.WriteString(f.w, b.String())
	return err
}
