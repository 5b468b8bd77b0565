package store

import "time"

// CheckRun is the history entry of one check session.
type CheckRun struct {
	ID         string
	Package    string // empty for a full check
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string // "completed", "failed" or "canceled"
	Records    int
	Failures   int
}
