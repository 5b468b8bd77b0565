package click

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrProcess marks failures of the enumeration process.
var ErrProcess = errors.New("enumeration process failed")

// ProcessError describes an enumeration process that could not be started
// or that exited with a nonzero status.
type ProcessError struct {
	Path     string
	ExitCode int // -1 when the process never ran or was killed
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Path)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s exited with status %d", e.Path, e.ExitCode)
	}
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() []error { return []error{ErrProcess, e.Err} }

// Enumerator lists the packages installed on the device.
type Enumerator interface {
	Installed(ctx context.Context) ([]PackageInfo, error)
}

// ProcessEnumerator runs an external executable that prints a JSON array of
// {"name", "revision"} objects on stdout.
type ProcessEnumerator struct {
	Path string
	Args []string
}

// NewProcessEnumerator creates an enumerator for the given executable.
func NewProcessEnumerator(path string, args ...string) *ProcessEnumerator {
	return &ProcessEnumerator{Path: path, Args: args}
}

// Installed runs the executable and parses its output. Canceling ctx kills
// the process.
func (p *ProcessEnumerator) Installed(ctx context.Context) ([]PackageInfo, error) {
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		perr := &ProcessError{
			Path:     p.Path,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			perr.Err = ctx.Err()
		}
		return nil, perr
	}

	return ParseInstalled(output)
}

// ParseInstalled decodes the enumeration process output. Empty output is an
// empty package list.
func ParseInstalled(output []byte) ([]PackageInfo, error) {
	if len(bytes.TrimSpace(output)) == 0 {
		return nil, nil
	}

	var pkgs []PackageInfo
	if err := json.Unmarshal(output, &pkgs); err != nil {
		return nil, fmt.Errorf("failed to parse installed packages: %w", err)
	}

	out := pkgs[:0]
	for _, p := range pkgs {
		if p.Name == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
