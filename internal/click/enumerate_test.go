package click

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const mockInstalledJSON = `[
  {"name": "com.ubuntu.calculator", "revision": 12},
  {"name": "com.ubuntu.weather", "revision": 3},
  {"name": "", "revision": 9}
]`

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "click-installed")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestParseInstalled(t *testing.T) {
	pkgs, err := ParseInstalled([]byte(mockInstalledJSON))
	if err != nil {
		t.Fatalf("ParseInstalled() error = %v", err)
	}

	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(pkgs))
	}
	if pkgs[0].Name != "com.ubuntu.calculator" || pkgs[0].Revision != 12 {
		t.Errorf("pkgs[0] = %+v", pkgs[0])
	}
	if pkgs[1].Name != "com.ubuntu.weather" || pkgs[1].Revision != 3 {
		t.Errorf("pkgs[1] = %+v", pkgs[1])
	}
}

func TestParseInstalled_Empty(t *testing.T) {
	for _, input := range []string{"", "  \n", "[]"} {
		pkgs, err := ParseInstalled([]byte(input))
		if err != nil {
			t.Errorf("ParseInstalled(%q) error = %v", input, err)
		}
		if len(pkgs) != 0 {
			t.Errorf("ParseInstalled(%q) = %v, want empty", input, pkgs)
		}
	}
}

func TestParseInstalled_Invalid(t *testing.T) {
	if _, err := ParseInstalled([]byte(`{"name": "x"}`)); err == nil {
		t.Error("expected error for non-array output")
	}
}

func TestProcessEnumerator_Success(t *testing.T) {
	script := writeScript(t, "cat <<'EOF'\n"+mockInstalledJSON+"\nEOF")

	pkgs, err := NewProcessEnumerator(script).Installed(context.Background())
	if err != nil {
		t.Fatalf("Installed() error = %v", err)
	}
	if len(pkgs) != 2 {
		t.Errorf("expected 2 packages, got %d", len(pkgs))
	}
}

func TestProcessEnumerator_NonzeroExit(t *testing.T) {
	script := writeScript(t, "echo boom >&2\nexit 1")

	_, err := NewProcessEnumerator(script).Installed(context.Background())
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !errors.Is(err, ErrProcess) {
		t.Errorf("error %v should match ErrProcess", err)
	}

	var perr *ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T should be *ProcessError", err)
	}
	if perr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", perr.ExitCode)
	}
	if perr.Stderr != "boom" {
		t.Errorf("Stderr = %q, want %q", perr.Stderr, "boom")
	}
}

func TestProcessEnumerator_MissingExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewProcessEnumerator(path).Installed(context.Background())
	if !errors.Is(err, ErrProcess) {
		t.Errorf("error %v should match ErrProcess", err)
	}
}

func TestProcessEnumerator_Canceled(t *testing.T) {
	script := writeScript(t, "sleep 10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessEnumerator(script).Installed(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v should match context.Canceled", err)
	}
}
