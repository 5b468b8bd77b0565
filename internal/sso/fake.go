package sso

import "sync"

// Fake is an in-memory Service. RequestCredentials answers with Creds
// unless Hold is set, in which case the test delivers events with Emit.
type Fake struct {
	mu            sync.Mutex
	handlers      []Handler
	creds         *Credentials
	hold          bool
	requests      int
	invalidations int
}

// NewFake returns a Fake holding creds; nil means no credentials.
func NewFake(creds *Credentials) *Fake {
	return &Fake{creds: creds}
}

// Hold makes RequestCredentials leave the request unanswered.
func (f *Fake) Hold(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
}

// SetCredentials replaces the stored credentials.
func (f *Fake) SetCredentials(creds *Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = creds
}

// Requests returns how many times RequestCredentials was called.
func (f *Fake) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Invalidations returns how many times InvalidateCredentials was called.
func (f *Fake) Invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidations
}

func (f *Fake) Subscribe(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

func (f *Fake) RequestCredentials() {
	f.mu.Lock()
	f.requests++
	hold := f.hold
	creds := f.creds
	f.mu.Unlock()

	if hold {
		return
	}
	ev := Event{Kind: CredentialsNotFound}
	if creds.Valid() {
		ev = Event{Kind: CredentialsFound, Credentials: creds}
	}
	go f.Emit(ev)
}

func (f *Fake) InvalidateCredentials() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func (f *Fake) SignRequest(rawURL, method string, asQuery bool) string {
	f.mu.Lock()
	creds := f.creds
	f.mu.Unlock()
	return creds.SignURL(rawURL, method, asQuery)
}

// Emit delivers ev to every subscriber.
func (f *Fake) Emit(ev Event) {
	f.mu.Lock()
	handlers := make([]Handler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

var (
	_ Service = (*Fake)(nil)
	_ Service = (*FileService)(nil)
)
