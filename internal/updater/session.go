package updater

import (
	"context"
	"time"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/token"
)

type phase int

const (
	phaseProcess phase = iota
	phaseMetadata
	phaseTokens
)

func (p phase) String() string {
	switch p {
	case phaseProcess:
		return "process-running"
	case phaseMetadata:
		return "metadata-requested"
	default:
		return "token-phase"
	}
}

// session is the state of one check. It is only touched on the loop.
type session struct {
	id      string
	pkg     string
	phase   phase
	started time.Time

	outstanding int
	anyFailure  bool
	failures    int
	canceled    bool
	err         error

	cancelProcess context.CancelFunc
	installed     []click.PackageInfo
	metadataOwner string

	records  []*click.UpdateRecord
	requests map[string]*token.Request
	// stalled requests wait for a credentials answer before starting.
	stalled []*token.Request
}

func (s *session) owner(name string) string {
	return s.id + "/" + name
}

func (s *session) owns(owner string) bool {
	return len(owner) > len(s.id) && owner[:len(s.id)] == s.id && owner[len(s.id)] == '/'
}

// fail records the first session-wide error.
func (s *session) fail(err error) {
	s.anyFailure = true
	if s.err == nil {
		s.err = err
	}
}

func (s *session) outcome() EventKind {
	switch {
	case s.canceled:
		return EventCheckCanceled
	case s.anyFailure:
		return EventCheckFailed
	default:
		return EventCheckCompleted
	}
}

func (s *session) snapshot() []click.UpdateRecord {
	out := make([]click.UpdateRecord, len(s.records))
	for i, r := range s.records {
		out[i] = *r
	}
	return out
}
