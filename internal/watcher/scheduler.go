package watcher

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/clickcheck/internal/logger"
)

// Checker is the part of the update orchestrator a Scheduler drives.
type Checker interface {
	IsCheckRequired() bool
	Checking() bool
	Check()
}

// Scheduler polls a Checker and starts a check whenever one is due.
type Scheduler struct {
	checker  Checker
	interval time.Duration
	log      *zap.SugaredLogger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started int
}

// New creates a Scheduler that polls every interval.
func New(checker Checker, interval time.Duration, log *zap.SugaredLogger) (*Scheduler, error) {
	if checker == nil {
		return nil, errors.New("checker cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if log == nil {
		log = logger.Logger()
	}
	return &Scheduler{
		checker:  checker,
		interval: interval,
		log:      log,
	}, nil
}

// Start polls once immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopCh)
}

func (s *Scheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ticker.C:
			s.poll()
		case <-stop:
			return
		}
	}
}

// poll starts a check if none is running and one is due.
func (s *Scheduler) poll() {
	if s.checker.Checking() {
		s.log.Debug("watcher: check in progress, skipping tick")
		return
	}
	if !s.checker.IsCheckRequired() {
		s.log.Debug("watcher: no check required")
		return
	}

	s.log.Info("watcher: starting scheduled check")
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
	s.checker.Check()
}

// Started returns how many checks the scheduler has triggered.
func (s *Scheduler) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stop halts polling and waits for the poll goroutine to exit. It does not
// cancel a check that is already running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}
