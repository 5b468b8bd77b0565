package updater

import "fmt"

// EventKind identifies an orchestrator event.
type EventKind int

const (
	EventCheckStarted EventKind = iota
	EventCheckCompleted
	EventCheckCanceled
	EventCheckFailed
	EventAuthenticatedChanged
)

func (k EventKind) String() string {
	switch k {
	case EventCheckStarted:
		return "check-started"
	case EventCheckCompleted:
		return "check-completed"
	case EventCheckCanceled:
		return "check-canceled"
	case EventCheckFailed:
		return "check-failed"
	case EventAuthenticatedChanged:
		return "authenticated-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Terminal reports whether the event closes a check session.
func (k EventKind) Terminal() bool {
	return k == EventCheckCompleted || k == EventCheckCanceled || k == EventCheckFailed
}

// Event is delivered to listeners on the orchestrator's loop goroutine.
type Event struct {
	Kind EventKind
	// Session is the check session id; empty for EventAuthenticatedChanged.
	Session string
	// Package is the package filter of the session, empty for a full check.
	Package string
	// Authenticated is the new value for EventAuthenticatedChanged.
	Authenticated bool
	// Records and Failures count the session's update records and the
	// ones that did not obtain a token. Terminal events only.
	Records  int
	Failures int
	// Err is the first session-wide error of a failed check.
	Err error
}

// Listener receives events. It runs on the loop goroutine and must not
// block; calling back into the Orchestrator is allowed.
type Listener func(Event)
