// Package token obtains the click token for one update record.
package token

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/clickapi"
	"github.com/blackwell-systems/clickcheck/internal/logger"
	"github.com/blackwell-systems/clickcheck/internal/sso"
)

var (
	ErrEmptyToken = errors.New("server returned an empty click token")
	ErrCanceled   = errors.New("token request canceled")
)

// Client is the part of the catalog client a Request uses.
type Client interface {
	HeadToken(owner, url string)
	CancelOwner(owner string)
}

// Signer signs URLs; *sso.Credentials implements it.
type Signer interface {
	SignURL(rawURL, method string, asQuery bool) string
}

// Result is the terminal report of a Request.
type Result struct {
	Package string
	Owner   string
	Token   string
	// Outcome is the reply outcome when the request reached the network.
	Outcome clickapi.Outcome
	Err     error
}

// Succeeded reports whether a token was obtained.
func (r Result) Succeeded() bool { return r.Err == nil }

// Options configures a Request.
type Options struct {
	// TokenURL replaces the scheme and host of the download URL when set.
	TokenURL string
	// IgnoreCredentials issues unsigned requests when no credentials are
	// held. Diagnostic use only.
	IgnoreCredentials bool
	Logger            *zap.SugaredLogger
}

// Request asks for the click token of one record and reports exactly one
// Result to done. It is not safe for concurrent use; its owner serializes
// Start, Handle and Cancel.
type Request struct {
	record *click.UpdateRecord
	owner  string
	client Client
	opts   Options
	done   func(Result)
	log    *zap.SugaredLogger

	issued   bool
	finished bool
}

// New creates a Request for record. Replies for it must carry owner.
func New(record *click.UpdateRecord, owner string, client Client, opts Options, done func(Result)) *Request {
	log := opts.Logger
	if log == nil {
		log = logger.Logger()
	}
	return &Request{
		record: record,
		owner:  owner,
		client: client,
		opts:   opts,
		done:   done,
		log:    log,
	}
}

// Owner returns the tag the request's replies carry.
func (r *Request) Owner() string { return r.owner }

// Package returns the name of the record's package.
func (r *Request) Package() string { return r.record.PackageName }

// Finished reports whether the Result has been delivered.
func (r *Request) Finished() bool { return r.finished }

// Start signs the download URL and issues the token request. Without valid
// credentials, and outside the diagnostic bypass, it fails at once without
// touching the network.
func (r *Request) Start(signer Signer) {
	if r.issued || r.finished {
		return
	}
	r.issued = true
	r.record.AwaitToken()

	valid := signer != nil
	if c, ok := signer.(*sso.Credentials); ok {
		valid = c.Valid()
	}

	if !valid && !r.opts.IgnoreCredentials {
		r.fail(clickapi.OutcomeCredentialError, sso.ErrNoCredentials)
		return
	}

	if r.record.DownloadURL == "" {
		r.fail(clickapi.OutcomeServerError, fmt.Errorf("%w: no download url", clickapi.ErrServer))
		return
	}

	query := ""
	if valid {
		query = signer.SignURL(r.record.DownloadURL, "HEAD", true)
		if query == "" {
			r.fail(clickapi.OutcomeCredentialError, sso.ErrSigning)
			return
		}
	} else {
		r.log.Warnf("token: requesting unsigned token for %s, credentials are ignored", r.record.PackageName)
	}

	target, err := SignedURL(r.record.DownloadURL, r.opts.TokenURL, query)
	if err != nil {
		r.fail(clickapi.OutcomeCredentialError, fmt.Errorf("%w: %v", sso.ErrSigning, err))
		return
	}

	r.log.Debugf("token: requesting token for %s", r.record.PackageName)
	r.client.HeadToken(r.owner, target)
}

// Handle processes the client's reply to this request.
func (r *Request) Handle(reply clickapi.Reply) {
	if r.finished {
		return
	}

	switch {
	case reply.Outcome == clickapi.OutcomeTokenSucceeded && reply.Token != "":
		r.record.SetToken(reply.Token)
		r.finish(Result{Outcome: reply.Outcome, Token: reply.Token})
	case reply.Outcome == clickapi.OutcomeTokenSucceeded,
		reply.Outcome == clickapi.OutcomeUnrecognized:
		r.fail(reply.Outcome, ErrEmptyToken)
	default:
		r.fail(reply.Outcome, reply.Err)
	}
}

// Cancel aborts the request. An issued request still reports its Result
// once the client's aborted reply arrives; one that was never issued fails
// immediately.
func (r *Request) Cancel() {
	if r.finished {
		return
	}
	if r.issued {
		r.client.CancelOwner(r.owner)
		return
	}
	r.issued = true
	r.record.AwaitToken()
	r.fail(clickapi.OutcomeNetworkError, ErrCanceled)
}

func (r *Request) fail(outcome clickapi.Outcome, err error) {
	r.record.Fail()
	r.log.Infof("token: request for %s failed: %v", r.record.PackageName, err)
	r.finish(Result{Outcome: outcome, Err: err})
}

func (r *Request) finish(res Result) {
	if r.finished {
		return
	}
	r.finished = true
	res.Package = r.record.PackageName
	res.Owner = r.owner
	if r.done != nil {
		r.done(res)
	}
}

// SignedURL builds the token endpoint URL for downloadURL: the scheme and
// host are replaced by tokenBase when it is set, and the query is replaced
// by the signed query.
func SignedURL(downloadURL, tokenBase, signedQuery string) (string, error) {
	u, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("invalid download url %q: %w", downloadURL, err)
	}

	if tokenBase != "" {
		base, err := url.Parse(tokenBase)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return "", fmt.Errorf("invalid token url %q", tokenBase)
		}
		u.Scheme = base.Scheme
		u.Host = base.Host
		if p := strings.TrimSuffix(base.Path, "/"); p != "" {
			u.Path = p + u.Path
			u.RawPath = ""
		}
	}

	u.RawQuery = signedQuery
	u.Fragment = ""
	return u.String(), nil
}
