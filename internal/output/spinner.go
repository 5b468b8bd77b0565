package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Spinner shows an animated status line with the elapsed time while a
// check runs. On a non-TTY writer it prints the message once instead.
type Spinner struct {
	mu       sync.Mutex
	w        io.Writer
	message  string
	frames   []string
	running  bool
	tty      bool
	started  time.Time
	lastLen  int
	done     chan struct{}
	interval time.Duration
}

// NewSpinner creates a stopped spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		frames:   []string{"|", "/", "-", "\\"},
		tty:      writerIsTTY(w),
		interval: 100 * time.Millisecond,
	}
}

// Start begins the animation. Calling Start on a running spinner does
// nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !s.tty {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}

	s.done = make(chan struct{})
	go s.animate(s.done)
}

func (s *Spinner) animate(done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			line := fmt.Sprintf("%s  %s (%ds)", s.frames[frame], s.message, int(time.Since(s.started).Seconds()))
			s.drawLocked(line)
			s.mu.Unlock()
			frame = (frame + 1) % len(s.frames)
		}
	}
}

// drawLocked overwrites the current line. Must be called with s.mu held.
func (s *Spinner) drawLocked(line string) {
	pad := ""
	if n := s.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(s.w, "\r%s%s", line, pad)
	s.lastLen = len(line)
}

// Update replaces the message. Non-TTY writers get the new message on its
// own line.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.message == message {
		return
	}
	s.message = message
	if s.running && !s.tty {
		fmt.Fprintf(s.w, "%s...\n", message)
	}
}

// Stop ends the animation and clears the line. A non-empty final message
// is printed on its own line.
func (s *Spinner) Stop(final string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.running = false
		if s.tty {
			close(s.done)
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.lastLen))
			s.lastLen = 0
		}
	}
	if final != "" {
		fmt.Fprintln(s.w, final)
	}
}

// Elapsed returns the time since Start.
func (s *Spinner) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}
