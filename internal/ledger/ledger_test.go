package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	first, err := l.StartRun(ctx, "batch")
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, first, model.Outcome{SubjectID: "UG27", SessionID: "A", Status: model.StatusSuccess, Warnings: 2, Duration: 1500 * time.Millisecond}, "fp-a"))
	require.NoError(t, l.Record(ctx, first, model.Outcome{SubjectID: "UG27", SessionID: "B", Status: model.StatusFailed, Reason: "NoSyncPulsesFound", Message: "no sync pulses found"}, ""))
	require.NoError(t, l.Record(ctx, first, model.Outcome{SubjectID: "UG27", SessionID: "C", Status: model.StatusSuccess}, "fp-c"))
	require.NoError(t, l.FinishRun(ctx, first))

	second, err := l.StartRun(ctx, "batch --watch")
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, second, model.Outcome{SubjectID: "UG27", SessionID: "A", Status: model.StatusSkipped, Reason: "OutputExists"}, "fp-a"))

	runs, err := l.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, first, runs[1].ID)
	assert.Equal(t, 2, runs[1].Converted)
	assert.Equal(t, 1, runs[1].Failed)
	assert.Equal(t, 3, runs[1].Total())
	assert.False(t, runs[1].FinishedAt.IsZero())

	entries, err := l.Sessions(ctx, first)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Outcome.SessionID)
	assert.Equal(t, 1500*time.Millisecond, entries[0].Outcome.Duration)
	assert.Equal(t, 2, entries[0].Outcome.Warnings)
	assert.Equal(t, model.StatusFailed, entries[1].Outcome.Status)
	assert.Equal(t, "NoSyncPulsesFound", entries[1].Outcome.Reason)
}

func TestLastSuccess(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	_, ok, err := l.LastSuccess(ctx, "UG27", "A")
	require.NoError(t, err)
	assert.False(t, ok)

	run, err := l.StartRun(ctx, "batch")
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, run, model.Outcome{SubjectID: "UG27", SessionID: "A", Status: model.StatusSuccess}, "old"))
	require.NoError(t, l.Record(ctx, run, model.Outcome{SubjectID: "UG27", SessionID: "A", Status: model.StatusSuccess}, "new"))
	require.NoError(t, l.Record(ctx, run, model.Outcome{SubjectID: "UG27", SessionID: "A", Status: model.StatusFailed}, "broken"))

	fp, ok, err := l.LastSuccess(ctx, "UG27", "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", fp)
}

func TestFinishUnknownRun(t *testing.T) {
	l := openTestLedger(t)
	assert.Error(t, l.FinishRun(context.Background(), "missing"))
}
