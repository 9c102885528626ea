package batch

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Stats counts session outcomes while a batch runs.
type Stats struct {
	total     int64
	converted int64
	skipped   int64
	failed    int64
	mu        sync.Mutex
	failures  []FailureDetail
}

// FailureDetail records why a session failed
type FailureDetail struct {
	Key    string
	Reason string
}

// NewStats creates stats for total sessions
func NewStats(total int) *Stats {
	return &Stats{total: int64(total)}
}

// Add counts one finished session
func (s *Stats) Add(o model.Outcome) {
	switch o.Status {
	case model.StatusSuccess:
		atomic.AddInt64(&s.converted, 1)
	case model.StatusSkipped:
		atomic.AddInt64(&s.skipped, 1)
	case model.StatusFailed:
		atomic.AddInt64(&s.failed, 1)
		s.mu.Lock()
		s.failures = append(s.failures, FailureDetail{Key: o.Key(), Reason: o.Reason})
		s.mu.Unlock()
	}
}

// GetStats returns the current counters
func (s *Stats) GetStats() (total, converted, skipped, failed int64) {
	return atomic.LoadInt64(&s.total),
		atomic.LoadInt64(&s.converted),
		atomic.LoadInt64(&s.skipped),
		atomic.LoadInt64(&s.failed)
}

// Processed is the number of finished sessions
func (s *Stats) Processed() int64 {
	_, converted, skipped, failed := s.GetStats()
	return converted + skipped + failed
}

// PrintProgress logs batch progress
func (s *Stats) PrintProgress() {
	total, converted, skipped, failed := s.GetStats()
	processed := converted + skipped + failed
	var pct float64
	if total > 0 {
		pct = float64(processed) / float64(total) * 100
	}
	util.LogInfo(fmt.Sprintf("Batch progress: %d/%d sessions (%.0f%%), %d converted/%d skipped/%d failed",
		processed, total, pct, converted, skipped, failed))
}

// PrintFinalStats logs the final counters and a summary of failure reasons
func (s *Stats) PrintFinalStats() {
	total, converted, skipped, failed := s.GetStats()
	util.LogInfo(fmt.Sprintf("Batch complete: %d sessions, %d converted/%d skipped/%d failed",
		total, converted, skipped, failed))

	if failed == 0 {
		return
	}
	s.mu.Lock()
	reasonCounts := make(map[string]int)
	for _, detail := range s.failures {
		reasonCounts[detail.Reason]++
		util.LogDebug(fmt.Sprintf("  failed %s (%s)", detail.Key, detail.Reason))
	}
	s.mu.Unlock()

	reasons := make([]string, 0, len(reasonCounts))
	for r := range reasonCounts {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	util.LogInfo("Failure reason summary:")
	for _, r := range reasons {
		util.LogInfo(fmt.Sprintf("  %s: %d sessions", r, reasonCounts[r]))
	}
}
