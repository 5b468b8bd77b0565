// Package clickapi talks to the click catalog: a bulk metadata request for
// installed packages and per-package click token requests.
//
// Every request issued through a Client ends in exactly one Reply delivered
// to the Client's Handler, including requests aborted by Cancel, which
// resolve as network errors. Requests are tagged with an owner so replies
// for owners that have been released are dropped instead of delivered.
package clickapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/logger"
)

const (
	TokenHeader        = "X-Click-Token"
	FrameworksHeader   = "X-Ubuntu-Frameworks"
	ArchitectureHeader = "X-Ubuntu-Architecture"
)

// Reply is the terminal event of one request.
type Reply struct {
	Owner      string
	Outcome    Outcome
	StatusCode int
	Token      string
	Body       []byte
	Err        error
}

// Failed reports whether the reply is one of the failure outcomes.
func (r Reply) Failed() bool {
	switch r.Outcome {
	case OutcomeNetworkError, OutcomeServerError, OutcomeCredentialError:
		return true
	}
	return false
}

// Handler receives replies. It is called from the goroutine that performed
// the request and must not block.
type Handler func(Reply)

// Options configures a Client.
type Options struct {
	HTTPClient   *http.Client
	Frameworks   []string
	Architecture string
	// Timeout bounds each request. Zero leaves stalls to the transport.
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

type pending struct {
	owner  string
	cancel context.CancelFunc
}

// Client issues catalog requests and tracks them until they resolve.
type Client struct {
	http         *http.Client
	frameworks   string
	architecture string
	timeout      time.Duration
	handler      Handler
	log          *zap.SugaredLogger

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]pending
	released map[string]bool
	wg       sync.WaitGroup
}

// New creates a Client delivering replies to handler.
func New(opts Options, handler Handler) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewSecureHTTPClient()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Logger()
	}
	return &Client{
		http:         httpClient,
		frameworks:   strings.Join(opts.Frameworks, ","),
		architecture: opts.Architecture,
		timeout:      opts.Timeout,
		handler:      handler,
		log:          log,
		pending:      make(map[uint64]pending),
		released:     make(map[string]bool),
	}
}

// NewSecureHTTPClient returns an http.Client that refuses anything older
// than TLS 1.2.
func NewSecureHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	transport.ForceAttemptHTTP2 = true
	return &http.Client{Transport: transport}
}

// PostMetadata requests catalog metadata for the given installed packages.
func (c *Client) PostMetadata(owner, url string, pkgs []click.PackageInfo) {
	if pkgs == nil {
		pkgs = []click.PackageInfo{}
	}
	c.issue(owner, func(ctx context.Context) (*http.Request, error) {
		payload, err := json.Marshal(pkgs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode package list: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(FrameworksHeader, c.frameworks)
		req.Header.Set(ArchitectureHeader, c.architecture)
		return req, nil
	})
}

// HeadToken asks the signing endpoint for a click token. url must already
// carry the signed query.
func (c *Client) HeadToken(owner, url string) {
	c.issue(owner, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	})
}

// Cancel aborts every outstanding request. Each one still delivers its
// reply, as a network error.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		p.cancel()
	}
}

// CancelOwner aborts the outstanding requests of one owner.
func (c *Client) CancelOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.owner == owner {
			p.cancel()
		}
	}
}

// Release forgets an owner: its outstanding requests are aborted and any
// reply still to come for it is dropped.
func (c *Client) Release(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.owner == owner {
			c.released[owner] = true
			p.cancel()
		}
	}
}

// Outstanding returns the number of requests that have not resolved.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) ownsPendingLocked(owner string) bool {
	for _, p := range c.pending {
		if p.owner == owner {
			return true
		}
	}
	return false
}

// Close aborts all requests and waits for their goroutines to exit.
func (c *Client) Close() {
	c.Cancel()
	c.wg.Wait()
}

func (c *Client) issue(owner string, build func(ctx context.Context) (*http.Request, error)) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.pending[id] = pending{owner: owner, cancel: cancel}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		reply := c.do(ctx, build)
		reply.Owner = owner

		c.mu.Lock()
		delete(c.pending, id)
		dropped := c.released[owner]
		if dropped && !c.ownsPendingLocked(owner) {
			delete(c.released, owner)
		}
		c.mu.Unlock()
		cancel()

		c.deliver(reply, dropped)
	}()
}

func (c *Client) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) Reply {
	req, err := build(ctx)
	if err != nil {
		return Reply{Outcome: OutcomeServerError, Err: fmt.Errorf("%w: %v", ErrServer, err)}
	}

	c.log.Debugf("click api: %s %s", req.Method, req.URL.Redacted())
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}

	return classify(resp.StatusCode, resp.Header, body)
}

func (c *Client) deliver(reply Reply, dropped bool) {
	if dropped {
		c.log.Debugf("click api: dropping %s reply for released owner %s", reply.Outcome, reply.Owner)
		return
	}

	switch {
	case reply.Outcome == OutcomeUnrecognized:
		c.log.Warnf("click api: response for %s not understood (status %d)", reply.Owner, reply.StatusCode)
	case reply.Failed():
		c.log.Errorf("click api: request for %s failed: %v", reply.Owner, reply.Err)
	}

	if c.handler != nil {
		c.handler(reply)
	}
}
