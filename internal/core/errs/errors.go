// Package errs holds the alignment error taxonomy shared by the core packages.
package errs

import "errors"

var (
	ErrNoSyncPulsesFound   = errors.New("no sync pulses found")
	ErrTimebaseMismatch    = errors.New("timebase mismatch")
	ErrWindowExceedsData   = errors.New("window exceeds data")
	ErrWindowOutOfRange    = errors.New("window starts past available data")
	ErrInvalidWindow       = errors.New("invalid inclusion window")
	ErrInterleaveIntegrity = errors.New("interleave integrity error")
	ErrNoSharedTimeWindow  = errors.New("no shared time window")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrFieldNotFound       = errors.New("field not found")
	ErrOutputExists        = errors.New("output already exists")
)

// kinds is ordered; the first match wins.
var kinds = []struct {
	err  error
	name string
}{
	{ErrNoSyncPulsesFound, "NoSyncPulsesFound"},
	{ErrTimebaseMismatch, "TimebaseMismatch"},
	{ErrInterleaveIntegrity, "InterleaveIntegrityError"},
	{ErrNoSharedTimeWindow, "NoSharedTimeWindow"},
	{ErrWindowOutOfRange, "WindowOutOfRange"},
	{ErrInvalidWindow, "InvalidWindow"},
	{ErrWindowExceedsData, "WindowExceedsData"},
	{ErrChannelNotFound, "ChannelNotFound"},
	{ErrFieldNotFound, "FieldNotFound"},
	{ErrOutputExists, "OutputExists"},
}

// Kind returns the taxonomy name of err, or "Error" for anything unclassified.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}
