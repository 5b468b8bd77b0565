package updater

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/sso"
)

var testCreds = &sso.Credentials{
	ConsumerKey:    "consumer",
	ConsumerSecret: "consumer-secret",
	TokenKey:       "token",
	TokenSecret:    "token-secret",
}

// enumFunc adapts a function to click.Enumerator.
type enumFunc func(ctx context.Context) ([]click.PackageInfo, error)

func (f enumFunc) Installed(ctx context.Context) ([]click.PackageInfo, error) { return f(ctx) }

func installed(pkgs ...click.PackageInfo) enumFunc {
	return func(context.Context) ([]click.PackageInfo, error) { return pkgs, nil }
}

// blockingEnum signals started and returns only when its context ends.
func blockingEnum(started chan<- struct{}) enumFunc {
	return func(ctx context.Context) ([]click.PackageInfo, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, &click.ProcessError{Path: "blocking", ExitCode: -1, Err: ctx.Err()}
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "click-installed")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

type tokenReply struct {
	status int
	token  string
	// block holds the request until the client aborts it.
	block bool
}

// catalog is a fake click catalog serving metadata and token requests.
type catalog struct {
	srv *httptest.Server

	mu             sync.Mutex
	metadataStatus int
	metadata       []byte
	metadataBlock  bool
	tokens         map[string]tokenReply
	metadataHits   int
	tokenHits      int
	queries        map[string]string
	headers        http.Header

	blocked chan string
}

func newCatalog(t *testing.T) *catalog {
	t.Helper()
	c := &catalog{
		metadataStatus: http.StatusOK,
		metadata:       []byte("[]"),
		tokens:         make(map[string]tokenReply),
		queries:        make(map[string]string),
		blocked:        make(chan string, 16),
	}
	c.srv = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *catalog) metadataURL() string { return c.srv.URL + "/metadata" }

func (c *catalog) downloadURL(name string) string {
	return c.srv.URL + "/download/" + name + ".click"
}

// setMetadata answers the metadata request with one entry per package at
// the given revision.
func (c *catalog) setMetadata(t *testing.T, revisions map[string]int) {
	t.Helper()
	entries := []click.Metadata{}
	for name, rev := range revisions {
		entries = append(entries, click.Metadata{
			Name:        name,
			Revision:    rev,
			Version:     "1.0",
			DownloadURL: c.downloadURL(name),
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("failed to marshal metadata: %v", err)
	}
	c.mu.Lock()
	c.metadata = data
	c.mu.Unlock()
}

// blockMetadata holds metadata requests until the client aborts them.
func (c *catalog) blockMetadata() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadataBlock = true
}

func (c *catalog) setToken(name string, reply tokenReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[name] = reply
}

func (c *catalog) hits() (metadata, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadataHits, c.tokenHits
}

func (c *catalog) query(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries[name]
}

func (c *catalog) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/metadata":
		c.mu.Lock()
		c.metadataHits++
		c.headers = r.Header.Clone()
		status, body, block := c.metadataStatus, c.metadata, c.metadataBlock
		c.mu.Unlock()
		if block {
			io.Copy(io.Discard, r.Body)
			c.blocked <- "metadata"
			<-r.Context().Done()
			return
		}
		w.WriteHeader(status)
		w.Write(body)

	case r.Method == http.MethodHead && strings.HasPrefix(r.URL.Path, "/download/"):
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/download/"), ".click")
		c.mu.Lock()
		c.tokenHits++
		c.queries[name] = r.URL.RawQuery
		reply, ok := c.tokens[name]
		c.mu.Unlock()

		if !ok {
			reply = tokenReply{status: http.StatusOK, token: "tok-" + name}
		}
		if reply.block {
			c.blocked <- name
			<-r.Context().Done()
			return
		}
		if reply.token != "" {
			w.Header().Set("X-Click-Token", reply.token)
		}
		w.WriteHeader(reply.status)

	default:
		http.NotFound(w, r)
	}
}

// recorder collects orchestrator events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder(o *Orchestrator) *recorder {
	r := &recorder{ch: make(chan Event, 64)}
	o.Subscribe(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		r.ch <- ev
	})
	return r
}

// waitFor returns the next event of the given kind.
func (r *recorder) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}

// waitTerminal returns the next event that closes a session.
func (r *recorder) waitTerminal(t *testing.T) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind.Terminal() {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for the check to end")
			return Event{}
		}
	}
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind.Terminal() {
			n++
		}
	}
	return n
}

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, *recorder) {
	t.Helper()
	o, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o, newRecorder(o)
}

func recordByName(records []click.UpdateRecord, name string) (click.UpdateRecord, bool) {
	for _, r := range records {
		if r.PackageName == name {
			return r, true
		}
	}
	return click.UpdateRecord{}, false
}
