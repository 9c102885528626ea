package model

import "time"

// OutcomeStatus is the result of one session in a batch.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "Success"
	StatusSkipped OutcomeStatus = "Skipped"
	StatusFailed  OutcomeStatus = "Failed"
)

// Outcome records what happened to one session of a batch.
type Outcome struct {
	SubjectID  string        `json:"subject_id"`
	SessionID  string        `json:"session_id"`
	OutputPath string        `json:"output_path"`
	Status     OutcomeStatus `json:"status"`
	// Reason is the error kind for failures, e.g. NoSyncPulsesFound.
	Reason   string        `json:"reason,omitempty"`
	Message  string        `json:"message,omitempty"`
	Warnings int           `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Key identifies the session within a batch.
func (o Outcome) Key() string {
	return o.SubjectID + "/" + o.SessionID
}
