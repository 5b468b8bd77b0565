package sso

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/clickcheck/internal/logger"
)

// FileService reads credentials from a YAML (or JSON) file. With Watch it
// also reports the file being written or removed.
//
// InvalidateCredentials does not touch the file. The stored credentials
// are treated as absent until the file is rewritten.
type FileService struct {
	path string
	log  *zap.SugaredLogger

	mu          sync.Mutex
	handlers    []Handler
	creds       *Credentials
	invalidated bool

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewFileService creates a service for the credentials file at path.
func NewFileService(path string, log *zap.SugaredLogger) *FileService {
	if log == nil {
		log = logger.Logger()
	}
	return &FileService{path: filepath.Clean(path), log: log}
}

// Subscribe implements Service.
func (s *FileService) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// RequestCredentials implements Service.
func (s *FileService) RequestCredentials() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.emit(s.load())
	}()
}

// InvalidateCredentials implements Service.
func (s *FileService) InvalidateCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	s.invalidated = true
	s.log.Infof("sso: credentials in %s invalidated", s.path)
}

// SignRequest implements Service.
func (s *FileService) SignRequest(rawURL, method string, asQuery bool) string {
	s.mu.Lock()
	creds := s.creds
	s.mu.Unlock()
	return creds.SignURL(rawURL, method, asQuery)
}

// Watch starts reporting changes to the credentials file. The parent
// directory must exist.
func (s *FileService) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create credentials watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(w)
	return nil
}

// Close stops watching and waits for pending deliveries.
func (s *FileService) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	s.wg.Wait()
	return err
}

func (s *FileService) run(w *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			s.handleFileEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warnf("sso: credentials watcher error: %v", err)
		}
	}
}

func (s *FileService) handleFileEvent(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		s.mu.Lock()
		s.creds = nil
		s.invalidated = false
		s.mu.Unlock()
		s.emit(Event{Kind: CredentialsDeleted})
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		s.mu.Lock()
		s.invalidated = false
		s.mu.Unlock()
		if found := s.load(); found.Kind == CredentialsFound {
			s.emit(found)
		}
	}
}

// load reads the file and records the result as the held credentials.
func (s *FileService) load() Event {
	s.mu.Lock()
	invalidated := s.invalidated
	s.mu.Unlock()
	if invalidated {
		return Event{Kind: CredentialsNotFound}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("sso: failed to read %s: %v", s.path, err)
		}
		return s.hold(nil)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		s.log.Warnf("sso: failed to parse %s: %v", s.path, err)
		return s.hold(nil)
	}
	if !creds.Valid() {
		s.log.Warnf("sso: %s is missing credential fields", s.path)
		return s.hold(nil)
	}
	return s.hold(&creds)
}

func (s *FileService) hold(creds *Credentials) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	if creds == nil {
		return Event{Kind: CredentialsNotFound}
	}
	copied := *creds
	return Event{Kind: CredentialsFound, Credentials: &copied}
}

func (s *FileService) emit(ev Event) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
