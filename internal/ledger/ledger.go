// Package ledger keeps the history of batch runs and per-session outcomes
// in a SQLite database.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/penwyp/go-photometry-sync/internal/core/model"

	_ "modernc.org/sqlite"
)

// Run summarizes one batch invocation.
type Run struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Converted  int       `json:"converted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// Total is the number of sessions recorded for the run.
func (r Run) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// Entry is one recorded session outcome.
type Entry struct {
	RunID       string        `json:"run_id"`
	Outcome     model.Outcome `json:"outcome"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// Ledger is a SQLite-backed run history.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// Worker goroutines record concurrently; SQLite allows one writer.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, now: time.Now}
	if err := l.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  command TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sessions (
  run_id TEXT NOT NULL REFERENCES runs(id),
  subject_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  output_path TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  warnings INTEGER NOT NULL DEFAULT 0,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  fingerprint TEXT NOT NULL DEFAULT '',
  recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_run ON sessions(run_id);
CREATE INDEX IF NOT EXISTS idx_sessions_key ON sessions(subject_id, session_id, status);
`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger tables: %w", err)
	}
	return nil
}

// StartRun registers a new run and returns its id.
func (l *Ledger) StartRun(ctx context.Context, command string) (string, error) {
	id := uuid.NewString()
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at) VALUES (?, ?, ?);`,
		id, command, formatTime(l.now())); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's completion time.
func (l *Ledger) FinishRun(ctx context.Context, runID string) error {
	res, err := l.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?;`, formatTime(l.now()), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// Record stores the outcome of one session of a run.
func (l *Ledger) Record(ctx context.Context, runID string, o model.Outcome, fingerprint string) error {
	const stmt = `
INSERT INTO sessions (run_id, subject_id, session_id, output_path, status, reason, message, warnings, duration_ms, fingerprint, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if _, err := l.db.ExecContext(ctx, stmt,
		runID, o.SubjectID, o.SessionID, o.OutputPath, string(o.Status), o.Reason, o.Message,
		o.Warnings, o.Duration.Milliseconds(), fingerprint, formatTime(l.now())); err != nil {
		return fmt.Errorf("record outcome %s: %w", o.Key(), err)
	}
	return nil
}

// LastSuccess returns the input fingerprint of the latest successful
// conversion of a session.
func (l *Ledger) LastSuccess(ctx context.Context, subjectID, sessionID string) (string, bool, error) {
	var fp string
	err := l.db.QueryRowContext(ctx, `
SELECT fingerprint FROM sessions
WHERE subject_id = ? AND session_id = ? AND status = ?
ORDER BY recorded_at DESC, rowid DESC
LIMIT 1;
`, subjectID, sessionID, string(model.StatusSuccess)).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last success: %w", err)
	}
	return fp, true, nil
}

// Runs lists the most recent runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT r.id, r.command, r.started_at, r.finished_at,
  COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN s.status = ? THEN 1 ELSE 0 END), 0)
FROM runs r
LEFT JOIN sessions s ON s.run_id = r.id
GROUP BY r.id
ORDER BY r.started_at DESC, r.rowid DESC
LIMIT ?;
`, string(model.StatusSuccess), string(model.StatusSkipped), string(model.StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run               Run
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.Command, &started, &finished, &run.Converted, &run.Skipped, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Sessions lists the outcomes recorded for a run in recording order.
func (l *Ledger) Sessions(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT subject_id, session_id, output_path, status, reason, message, warnings, duration_ms, fingerprint, recorded_at
FROM sessions
WHERE run_id = ?
ORDER BY rowid ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			durationMS int64
			recorded   string
		)
		if err := rows.Scan(&e.Outcome.SubjectID, &e.Outcome.SessionID, &e.Outcome.OutputPath, &status,
			&e.Outcome.Reason, &e.Outcome.Message, &e.Outcome.Warnings, &durationMS, &e.Fingerprint, &recorded); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.RunID = runID
		e.Outcome.Status = model.OutcomeStatus(status)
		e.Outcome.Duration = time.Duration(durationMS) * time.Millisecond
		e.RecordedAt = parseTime(recorded)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
