// Package updater drives update checks: it enumerates the installed click
// packages, asks the catalog which of them have newer revisions and
// acquires a click token for every update found.
//
// All check state lives on a single loop goroutine. Process, network and
// credential completions are posted back to that loop, so session
// accounting needs no locking; the public queries read snapshots the loop
// publishes.
package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/clickapi"
	"github.com/blackwell-systems/clickcheck/internal/logger"
	"github.com/blackwell-systems/clickcheck/internal/sso"
	"github.com/blackwell-systems/clickcheck/internal/store"
	"github.com/blackwell-systems/clickcheck/internal/token"
)

// DefaultCheckInterval is the time after which IsCheckRequired reports true.
const DefaultCheckInterval = 24 * time.Hour

// Store persists the outcome of each session. *store.Store implements it.
type Store interface {
	SaveRecords(records []click.UpdateRecord, at time.Time) error
	InsertCheck(run *store.CheckRun) error
	LastCompletedCheck() (time.Time, error)
}

// Options configures an Orchestrator.
type Options struct {
	Enumerator  click.Enumerator
	Credentials sso.Service
	// Store is optional.
	Store Store

	MetadataURL  string
	TokenURL     string
	Frameworks   []string
	Architecture string
	HTTPClient   *http.Client
	Timeout      time.Duration

	CheckInterval time.Duration
	// IgnoreCredentials lets token requests go out unsigned when no
	// credentials are held. Diagnostic use only.
	IgnoreCredentials bool

	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Orchestrator runs at most one check session at a time.
type Orchestrator struct {
	opts   Options
	log    *zap.SugaredLogger
	loop   *loop
	client *clickapi.Client
	signer token.Signer

	listenersMu sync.Mutex
	listeners   []Listener

	procs sync.WaitGroup

	// loop state
	session      *session
	creds        *sso.Credentials
	credsPending bool
	closing      bool

	// published state
	authenticated atomic.Bool
	resolved      chan struct{}
	resolvedOnce  sync.Once
	checking      atomic.Bool
	mu            sync.RWMutex
	records       []click.UpdateRecord
	lastCheck     time.Time

	closeOnce sync.Once
}

// New creates an Orchestrator, starts its loop and requests credentials.
func New(opts Options) (*Orchestrator, error) {
	if opts.Enumerator == nil {
		return nil, errors.New("updater: no package enumerator")
	}
	if opts.Credentials == nil {
		return nil, errors.New("updater: no credentials service")
	}
	if opts.MetadataURL == "" {
		return nil, errors.New("updater: no metadata url")
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Logger()
	}

	o := &Orchestrator{
		opts:     opts,
		log:      opts.Logger,
		loop:     newLoop(),
		resolved: make(chan struct{}),
	}
	o.signer = serviceSigner{opts.Credentials}
	o.client = clickapi.New(clickapi.Options{
		HTTPClient:   opts.HTTPClient,
		Frameworks:   opts.Frameworks,
		Architecture: opts.Architecture,
		Timeout:      opts.Timeout,
		Logger:       opts.Logger,
	}, func(r clickapi.Reply) {
		o.loop.post(func() { o.onReply(r) })
	})

	if opts.Store != nil {
		last, err := opts.Store.LastCompletedCheck()
		if err != nil {
			o.log.Warnf("updater: reading last check time: %v", err)
		}
		o.lastCheck = last
	}

	if opts.IgnoreCredentials {
		o.log.Warn("updater: credentials are ignored, token requests may be sent unsigned")
	}

	opts.Credentials.Subscribe(func(ev sso.Event) {
		o.loop.post(func() { o.onCredentials(ev) })
	})
	o.loop.post(o.requestCredentials)

	return o, nil
}

// Subscribe registers l for all future events.
func (o *Orchestrator) Subscribe(l Listener) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Check starts a check of every installed package. It does nothing while
// another check is running.
func (o *Orchestrator) Check() {
	o.loop.post(func() { o.start("") })
}

// CheckPackage starts a check limited to one installed package.
func (o *Orchestrator) CheckPackage(name string) {
	o.loop.post(func() { o.start(name) })
}

// Cancel aborts the running check. The session still ends with exactly one
// EventCheckCanceled once every aborted operation has reported back.
func (o *Orchestrator) Cancel() {
	o.loop.post(o.cancel)
}

// IsCheckRequired reports whether the check interval has passed since the
// last completed full check.
func (o *Orchestrator) IsCheckRequired() bool {
	o.mu.RLock()
	last := o.lastCheck
	o.mu.RUnlock()
	if last.IsZero() {
		return true
	}
	return o.opts.Now().Sub(last) >= o.opts.CheckInterval
}

// Authenticated reports whether valid credentials are held.
func (o *Orchestrator) Authenticated() bool {
	return o.authenticated.Load()
}

// CredentialsResolved is closed once the credentials service has answered
// for the first time. Authenticated is final for that answer afterwards.
func (o *Orchestrator) CredentialsResolved() <-chan struct{} {
	return o.resolved
}

// Checking reports whether a check session is active.
func (o *Orchestrator) Checking() bool {
	return o.checking.Load()
}

// Records returns the update records of the last session that reached the
// token phase or finished.
func (o *Orchestrator) Records() []click.UpdateRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]click.UpdateRecord, len(o.records))
	copy(out, o.records)
	return out
}

// Close cancels any running check, waits for it to end and stops the loop.
// It must not be called from a Listener.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.loop.wait(func() {
			o.closing = true
			o.cancel()
		})
		o.client.Close()
		o.procs.Wait()
		o.loop.close()
	})
	return nil
}

func (o *Orchestrator) emit(ev Event) {
	o.listenersMu.Lock()
	listeners := make([]Listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.listenersMu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (o *Orchestrator) publishRecords(records []click.UpdateRecord) {
	o.mu.Lock()
	o.records = records
	o.mu.Unlock()
}

// Session lifecycle

func (o *Orchestrator) start(pkg string) {
	if o.closing {
		return
	}
	if o.session != nil {
		o.log.Debugf("updater: check %s already running, ignoring request", o.session.id)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:            uuid.NewString(),
		pkg:           pkg,
		phase:         phaseProcess,
		started:       o.opts.Now(),
		cancelProcess: cancel,
		requests:      make(map[string]*token.Request),
	}
	o.session = s
	o.checking.Store(true)

	if pkg == "" {
		o.log.Infof("updater: check %s started", s.id)
	} else {
		o.log.Infof("updater: check %s started for %s", s.id, pkg)
	}
	o.emit(Event{Kind: EventCheckStarted, Session: s.id, Package: pkg})

	o.procs.Add(1)
	go func() {
		defer o.procs.Done()
		pkgs, err := o.opts.Enumerator.Installed(ctx)
		o.loop.post(func() { o.onInstalled(s, pkgs, err) })
	}()
}

func (o *Orchestrator) onInstalled(s *session, pkgs []click.PackageInfo, err error) {
	if o.session != s {
		return
	}
	s.cancelProcess()
	s.cancelProcess = nil

	if err != nil {
		o.log.Errorf("updater: check %s: %v", s.id, err)
		s.fail(err)
		o.finish(s)
		return
	}
	if s.canceled {
		o.finish(s)
		return
	}

	if s.pkg != "" {
		pkgs = click.FilterPackages(pkgs, s.pkg)
	}
	if len(pkgs) == 0 {
		o.log.Infof("updater: check %s: no installed packages to check", s.id)
		o.finish(s)
		return
	}

	s.installed = pkgs
	s.phase = phaseMetadata
	s.metadataOwner = s.owner("metadata")
	o.log.Debugf("updater: check %s: requesting metadata for %d packages", s.id, len(pkgs))
	o.client.PostMetadata(s.metadataOwner, o.opts.MetadataURL, pkgs)
}

func (o *Orchestrator) onReply(r clickapi.Reply) {
	s := o.session
	if s == nil || !s.owns(r.Owner) {
		o.log.Debugf("updater: dropping stale %s reply for %s", r.Outcome, r.Owner)
		return
	}

	if r.Owner == s.metadataOwner {
		if s.phase == phaseMetadata {
			o.onMetadata(s, r)
		}
		return
	}
	if req, ok := s.requests[r.Owner]; ok {
		req.Handle(r)
	}
}

func (o *Orchestrator) onMetadata(s *session, r clickapi.Reply) {
	switch r.Outcome {
	case clickapi.OutcomeMetadataSucceeded:
	case clickapi.OutcomeCredentialError:
		// the metadata call is unsigned; a credential rejection is a
		// server anomaly
		s.fail(fmt.Errorf("%w: metadata rejected: %v", clickapi.ErrServer, r.Err))
		o.finish(s)
		return
	case clickapi.OutcomeNetworkError, clickapi.OutcomeServerError:
		s.fail(r.Err)
		o.finish(s)
		return
	default:
		s.fail(fmt.Errorf("%w: metadata response (status %d)", clickapi.ErrUnrecognized, r.StatusCode))
		o.finish(s)
		return
	}

	if s.canceled {
		o.finish(s)
		return
	}

	entries, err := click.ParseMetadata(r.Body)
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", clickapi.ErrServer, err))
		o.finish(s)
		return
	}

	records := click.BuildRecords(s.installed, entries)
	if len(records) == 0 {
		o.log.Infof("updater: check %s: everything is up to date", s.id)
		o.finish(s)
		return
	}

	s.records = records
	s.phase = phaseTokens
	s.outstanding = len(records)

	topts := token.Options{
		TokenURL:          o.opts.TokenURL,
		IgnoreCredentials: o.opts.IgnoreCredentials,
		Logger:            o.log,
	}
	reqs := make([]*token.Request, 0, len(records))
	for _, rec := range records {
		rec.AwaitToken()
		req := token.New(rec, s.owner("pkg:"+rec.PackageName), o.client, topts, func(res token.Result) {
			o.onToken(s, res)
		})
		s.requests[req.Owner()] = req
		reqs = append(reqs, req)
	}
	o.publishRecords(s.snapshot())
	o.log.Infof("updater: check %s: %d updates, requesting tokens", s.id, len(records))

	for _, req := range reqs {
		if o.session != s {
			return
		}
		o.startRequest(s, req)
	}
}

func (o *Orchestrator) startRequest(s *session, req *token.Request) {
	switch {
	case o.creds.Valid():
		req.Start(o.signer)
	case o.credsPending:
		o.log.Debugf("updater: token request for %s waits for credentials", req.Package())
		s.stalled = append(s.stalled, req)
	default:
		req.Start(nil)
	}
}

func (o *Orchestrator) onToken(s *session, res token.Result) {
	if o.session != s {
		return
	}

	s.outstanding--
	if !res.Succeeded() {
		s.anyFailure = true
		s.failures++
		if errors.Is(res.Err, clickapi.ErrCredential) {
			o.refreshCredentials()
		}
	}

	if s.outstanding == 0 {
		o.finish(s)
	}
}

func (o *Orchestrator) cancel() {
	s := o.session
	if s == nil || s.canceled {
		return
	}
	s.canceled = true
	o.log.Infof("updater: canceling check %s (%s)", s.id, s.phase)

	switch s.phase {
	case phaseProcess:
		s.cancelProcess()
	case phaseMetadata:
		o.client.Cancel()
	case phaseTokens:
		o.client.Cancel()
		stalled := s.stalled
		s.stalled = nil
		for _, req := range stalled {
			req.Cancel()
		}
	}
}

func (o *Orchestrator) finish(s *session) {
	o.session = nil
	if s.cancelProcess != nil {
		s.cancelProcess()
	}
	if s.metadataOwner != "" {
		o.client.Release(s.metadataOwner)
	}
	for owner := range s.requests {
		o.client.Release(owner)
	}

	kind := s.outcome()
	now := o.opts.Now()
	records := s.snapshot()

	o.mu.Lock()
	o.records = records
	if kind == EventCheckCompleted && s.pkg == "" {
		o.lastCheck = now
	}
	o.mu.Unlock()

	o.persist(s, kind, records, now)
	o.checking.Store(false)

	switch kind {
	case EventCheckFailed:
		o.log.Warnf("updater: check %s failed (%d of %d tokens failed): %v", s.id, s.failures, len(records), s.err)
	default:
		o.log.Infof("updater: check %s %s with %d updates", s.id, outcomeName(kind), len(records))
	}

	o.emit(Event{
		Kind:     kind,
		Session:  s.id,
		Package:  s.pkg,
		Records:  len(records),
		Failures: s.failures,
		Err:      s.err,
	})
}

func (o *Orchestrator) persist(s *session, kind EventKind, records []click.UpdateRecord, now time.Time) {
	if o.opts.Store == nil {
		return
	}
	if len(records) > 0 {
		if err := o.opts.Store.SaveRecords(records, now); err != nil {
			o.log.Warnf("updater: saving records of check %s: %v", s.id, err)
		}
	}
	run := &store.CheckRun{
		ID:         s.id,
		Package:    s.pkg,
		StartedAt:  s.started,
		FinishedAt: now,
		Outcome:    outcomeName(kind),
		Records:    len(records),
		Failures:   s.failures,
	}
	if err := o.opts.Store.InsertCheck(run); err != nil {
		o.log.Warnf("updater: saving check %s: %v", s.id, err)
	}
}

// Credentials

func (o *Orchestrator) requestCredentials() {
	if o.credsPending {
		return
	}
	o.credsPending = true
	o.opts.Credentials.RequestCredentials()
}

// refreshCredentials drops credentials the server rejected and asks for
// them again. Requests already issued are not retried.
func (o *Orchestrator) refreshCredentials() {
	if o.credsPending {
		return
	}
	o.log.Info("updater: credentials rejected, requesting them again")
	o.creds = nil
	o.setAuthenticated(false)
	o.opts.Credentials.InvalidateCredentials()
	o.requestCredentials()
}

func (o *Orchestrator) onCredentials(ev sso.Event) {
	o.credsPending = false
	if ev.Available() {
		o.creds = ev.Credentials
		o.setAuthenticated(true)
	} else {
		o.log.Infof("updater: %s", ev.Kind)
		o.creds = nil
		o.setAuthenticated(false)
	}
	o.resolvedOnce.Do(func() { close(o.resolved) })

	s := o.session
	if s == nil || len(s.stalled) == 0 {
		return
	}
	stalled := s.stalled
	s.stalled = nil
	for _, req := range stalled {
		if o.session != s {
			return
		}
		o.startRequest(s, req)
	}
}

func (o *Orchestrator) setAuthenticated(v bool) {
	if o.authenticated.Swap(v) == v {
		return
	}
	o.emit(Event{Kind: EventAuthenticatedChanged, Authenticated: v})
}

// serviceSigner signs through the credentials service.
type serviceSigner struct {
	svc sso.Service
}

func (s serviceSigner) SignURL(rawURL, method string, asQuery bool) string {
	return s.svc.SignRequest(rawURL, method, asQuery)
}

func outcomeName(k EventKind) string {
	switch k {
	case EventCheckCompleted:
		return "completed"
	case EventCheckCanceled:
		return "canceled"
	default:
		return "failed"
	}
}
