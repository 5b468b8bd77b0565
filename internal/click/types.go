// Package click models installed click packages and the update records
// derived from the remote catalog.
package click

import "fmt"

// PackageInfo is one installed package as reported by the enumeration process.
type PackageInfo struct {
	Name     string `json:"name"`
	Revision int    `json:"revision"`
}

// RecordState is the lifecycle state of an UpdateRecord within one check.
type RecordState int

const (
	StatePending RecordState = iota
	StateAwaitingToken
	StateReady
	StateFailed
)

func (s RecordState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAwaitingToken:
		return "awaiting-token"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseRecordState is the inverse of RecordState.String.
func ParseRecordState(s string) (RecordState, error) {
	switch s {
	case "pending":
		return StatePending, nil
	case "awaiting-token":
		return StateAwaitingToken, nil
	case "ready":
		return StateReady, nil
	case "failed":
		return StateFailed, nil
	}
	return StatePending, fmt.Errorf("unknown record state %q", s)
}

// UpdateRecord is a candidate update for one package and the click token
// acquired for it. Token is non-empty only in StateReady.
type UpdateRecord struct {
	PackageName       string
	InstalledRevision int
	RemoteRevision    int
	Version           string
	Title             string
	DownloadURL       string
	DownloadSHA512    string
	BinarySize        int64
	Changelog         string
	Token             string
	State             RecordState
}

// AwaitToken moves a pending record into StateAwaitingToken. It reports
// false if the record already left StatePending.
func (r *UpdateRecord) AwaitToken() bool {
	if r.State != StatePending {
		return false
	}
	r.State = StateAwaitingToken
	return true
}

// SetToken stores the token and marks the record ready.
func (r *UpdateRecord) SetToken(token string) bool {
	if r.State != StateAwaitingToken || token == "" {
		return false
	}
	r.Token = token
	r.State = StateReady
	return true
}

// Fail marks the record failed and clears any token.
func (r *UpdateRecord) Fail() bool {
	if r.State != StateAwaitingToken {
		return false
	}
	r.Token = ""
	r.State = StateFailed
	return true
}

// Metadata is one entry of the catalog's click-metadata response.
type Metadata struct {
	Name           string `json:"name"`
	Revision       int    `json:"revision"`
	Version        string `json:"version,omitempty"`
	Title          string `json:"title,omitempty"`
	DownloadURL    string `json:"download_url"`
	DownloadSHA512 string `json:"download_sha512,omitempty"`
	BinarySize     int64  `json:"binary_filesize,omitempty"`
	Changelog      string `json:"changelog,omitempty"`
}
