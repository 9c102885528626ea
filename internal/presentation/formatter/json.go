package formatter

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
)

type JSONFormatter struct {
	w io.Writer
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{w: w}
}

func (f *JSONFormatter) FormatOutcomes(outcomes []model.Outcome) error {
	if outcomes == nil {
		outcomes = []model.Outcome{}
	}
	return f.encode(outcomes)
}

func (f *JSONFormatter) FormatRuns(runs []ledger.Run) error {
	if runs == nil {
		runs = []ledger.Run{}
	}
	return f.encode(runs)
}

func (f *JSONFormatter) encode(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.w.Write(append(data, '\n'))
	return err
}
