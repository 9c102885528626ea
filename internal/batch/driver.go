// Package batch runs session conversions for every selected row of a
// session manifest and reports one outcome per session.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/table"
	"github.com/penwyp/go-photometry-sync/internal/output"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Reasons reported for skipped sessions.
const (
	ReasonOutputExists = "OutputExists"
	ReasonUnchanged    = "Unchanged"
)

// Converter converts one session group.
type Converter interface {
	// Inputs lists the files the session reads.
	Inputs(group table.SessionGroup) ([]string, error)
	Convert(ctx context.Context, group table.SessionGroup, outputPath string, overwrite bool) (*model.SessionRecord, error)
}

// Recorder stores outcomes across runs.
type Recorder interface {
	Record(ctx context.Context, runID string, o model.Outcome, fingerprint string) error
	LastSuccess(ctx context.Context, subjectID, sessionID string) (string, bool, error)
}

// Options configures a Driver.
type Options struct {
	OutputDir   string
	Stub        bool
	Concurrency int
	// SkipUnchanged skips sessions whose inputs match the last successful
	// conversion recorded by the Recorder and whose output still exists.
	SkipUnchanged bool
	RunID         string
}

// Driver runs conversions over a manifest.
type Driver struct {
	converter Converter
	recorder  Recorder
	opts      Options
	now       func() time.Time
}

// NewDriver creates a driver. recorder may be nil.
func NewDriver(converter Converter, recorder Recorder, opts Options) *Driver {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Driver{converter: converter, recorder: recorder, opts: opts, now: time.Now}
}

// OutputPath is where the container of a session group is written.
func (d *Driver) OutputPath(group table.SessionGroup) string {
	first := group.First()
	return filepath.Join(d.opts.OutputDir, output.FileName(first.SubjectID(), first.ExperimentDirectory, d.opts.Stub))
}

// Run converts every session of rows selected by subjectFilter. Session
// failures become Failed outcomes and never stop the batch. Outcomes are
// returned in manifest order. When ctx is cancelled no new sessions start;
// the outcomes of started sessions are returned with ctx.Err().
func (d *Driver) Run(ctx context.Context, rows []table.ManifestRow, subjectFilter []string, overwrite bool) ([]model.Outcome, error) {
	groups, err := table.GroupSessions(rows, subjectFilter)
	if err != nil {
		return nil, err
	}

	if d.opts.RunID != "" {
		ctx = context.WithValue(ctx, util.RunIDKey, d.opts.RunID)
	}
	util.LogInfoContext(ctx, fmt.Sprintf("Starting batch of %d sessions with concurrency %d", len(groups), d.opts.Concurrency))
	stats := NewStats(len(groups))

	outcomes := make([]model.Outcome, len(groups))
	started := make([]bool, len(groups))
	semaphore := make(chan struct{}, d.opts.Concurrency)
	var wg sync.WaitGroup

	for i, group := range groups {
		select {
		case <-ctx.Done():
		case semaphore <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}
		started[i] = true

		wg.Add(1)
		go func(i int, group table.SessionGroup) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcomes[i] = d.runOne(ctx, group, overwrite)
			stats.Add(outcomes[i])
			stats.PrintProgress()
		}(i, group)
	}
	wg.Wait()
	stats.PrintFinalStats()

	if err := ctx.Err(); err != nil {
		var done []model.Outcome
		for i, ok := range started {
			if ok {
				done = append(done, outcomes[i])
			}
		}
		return done, err
	}
	return outcomes, nil
}

func (d *Driver) runOne(ctx context.Context, group table.SessionGroup, overwrite bool) model.Outcome {
	begin := d.now()
	first := group.First()
	out := model.Outcome{
		SubjectID:  first.SubjectID(),
		SessionID:  first.ExperimentDirectory,
		OutputPath: d.OutputPath(group),
	}
	ctx = context.WithValue(ctx, util.SessionKey, out.Key())
	var fingerprint string

	finish := func(status model.OutcomeStatus, reason string, err error) model.Outcome {
		out.Status = status
		out.Reason = reason
		if err != nil {
			out.Message = err.Error()
		}
		out.Duration = d.now().Sub(begin)
		d.record(ctx, out, fingerprint)
		return out
	}

	if !overwrite && output.Exists(out.OutputPath) {
		util.LogInfoContext(ctx, fmt.Sprintf("Skipping %s: %s already exists", out.Key(), out.OutputPath))
		return finish(model.StatusSkipped, ReasonOutputExists, nil)
	}

	inputs, err := d.converter.Inputs(group)
	if err != nil {
		return d.fail(ctx, finish, out, err)
	}
	if fingerprint, err = util.FingerprintFiles(inputs); err != nil {
		return d.fail(ctx, finish, out, err)
	}
	if d.unchanged(ctx, out, fingerprint) {
		util.LogInfoContext(ctx, fmt.Sprintf("Skipping %s: inputs unchanged since last conversion", out.Key()))
		return finish(model.StatusSkipped, ReasonUnchanged, nil)
	}

	record, err := d.converter.Convert(ctx, group, out.OutputPath, overwrite)
	if errors.Is(err, errs.ErrOutputExists) {
		return finish(model.StatusSkipped, ReasonOutputExists, nil)
	}
	if err != nil {
		return d.fail(ctx, finish, out, err)
	}
	out.Warnings = len(record.Warnings)
	return finish(model.StatusSuccess, "", nil)
}

func (d *Driver) fail(ctx context.Context, finish func(model.OutcomeStatus, string, error) model.Outcome, out model.Outcome, err error) model.Outcome {
	reason := errs.Kind(err)
	util.LogErrorContext(ctx, fmt.Sprintf("Session %s failed (%s): %v", out.Key(), reason, err))
	return finish(model.StatusFailed, reason, err)
}

func (d *Driver) unchanged(ctx context.Context, out model.Outcome, fingerprint string) bool {
	if !d.opts.SkipUnchanged || d.recorder == nil || !output.Exists(out.OutputPath) {
		return false
	}
	last, ok, err := d.recorder.LastSuccess(ctx, out.SubjectID, out.SessionID)
	if err != nil {
		util.LogWarnContext(ctx, fmt.Sprintf("Ledger lookup for %s failed: %v", out.Key(), err))
		return false
	}
	return ok && last == fingerprint
}

func (d *Driver) record(ctx context.Context, out model.Outcome, fingerprint string) {
	if d.recorder == nil || d.opts.RunID == "" {
		return
	}
	// Outcomes are recorded even when the batch context is cancelled.
	if err := d.recorder.Record(context.WithoutCancel(ctx), d.opts.RunID, out, fingerprint); err != nil {
		util.LogWarnContext(ctx, fmt.Sprintf("Failed to record outcome of %s: %v", out.Key(), err))
	}
}
