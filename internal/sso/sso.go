// Package sso resolves the single sign-on credentials used to sign click
// token requests.
package sso

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials is reported when signing is attempted without
	// valid credentials.
	ErrNoCredentials = errors.New("no valid credentials")
	// ErrSigning is reported when a request could not be signed.
	ErrSigning = errors.New("failed to sign request")
)

// EventKind tells what a credentials event reports.
type EventKind int

const (
	CredentialsFound EventKind = iota
	CredentialsNotFound
	CredentialsDeleted
)

func (k EventKind) String() string {
	switch k {
	case CredentialsFound:
		return "credentials-found"
	case CredentialsNotFound:
		return "credentials-not-found"
	case CredentialsDeleted:
		return "credentials-deleted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to subscribers when credentials are resolved or change.
type Event struct {
	Kind        EventKind
	Credentials *Credentials
}

// Available reports whether the event carries usable credentials.
// NotFound and Deleted are both "unavailable".
func (e Event) Available() bool {
	return e.Kind == CredentialsFound && e.Credentials.Valid()
}

// Handler receives credentials events. It must not block.
type Handler func(Event)

// Service resolves credentials asynchronously and signs requests with the
// credentials it last resolved.
type Service interface {
	// Subscribe registers h for every future event.
	Subscribe(h Handler)
	// RequestCredentials resolves the stored credentials. Exactly one
	// event is delivered per call.
	RequestCredentials()
	// InvalidateCredentials marks the held credentials as rejected.
	// Callers must request credentials again before signing.
	InvalidateCredentials()
	// SignRequest signs rawURL for method. An empty result means signing
	// failed.
	SignRequest(rawURL, method string, asQuery bool) string
}
