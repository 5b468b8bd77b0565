package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	// Test that root command is properly configured
	if RootCmd.Use != "clickcheck" {
		t.Errorf("expected Use to be 'clickcheck', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{"check", "status", "watch"}
	foundCommands := make(map[string]bool)

	for _, cmd := range RootCmd.Commands() {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"db", "config", "verbose"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestGetDBPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name       string
		dbPathFlag string
		configured string
		want       string
	}{
		{
			name: "default path",
			want: filepath.Join(home, ".clickcheck", "clickcheck.db"),
		},
		{
			name:       "configured path",
			configured: "/tmp/configured.db",
			want:       "/tmp/configured.db",
		},
		{
			name:       "flag wins over configured path",
			dbPathFlag: "/tmp/test.db",
			configured: "/tmp/configured.db",
			want:       "/tmp/test.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldDBPath := dbPath
			dbPath = tt.dbPathFlag
			defer func() { dbPath = oldDBPath }()

			path, err := getDBPath(tt.configured)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if path != tt.want {
				t.Errorf("getDBPath() = %q, want %q", path, tt.want)
			}
		})
	}
}

func TestGetDefaultPIDFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := getDefaultPIDFile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(path, "watch.pid") {
		t.Errorf("expected path to end with 'watch.pid', got '%s'", path)
	}

	// Check that directory exists
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("expected directory '%s' to exist", dir)
	}
}

func TestGetDefaultLogFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := getDefaultLogFile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(path, "watch.log") {
		t.Errorf("expected path to end with 'watch.log', got '%s'", path)
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("expected directory '%s' to exist", dir)
	}
}

func TestRootCmd_BareInvocationShowsHelp(t *testing.T) {
	if RootCmd.RunE == nil {
		t.Fatal("expected RootCmd.RunE to be set for bare invocation")
	}

	if RootCmd.SuggestionsMinimumDistance != 2 {
		t.Errorf("SuggestionsMinimumDistance = %d, want 2", RootCmd.SuggestionsMinimumDistance)
	}

	if !RootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be true")
	}
	if !RootCmd.SilenceErrors {
		t.Error("expected SilenceErrors to be true")
	}

	if !strings.Contains(RootCmd.Long, "Quick Start") {
		t.Error("expected Long description to contain 'Quick Start' section")
	}

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	defer RootCmd.SetOut(nil)

	if err := RootCmd.RunE(RootCmd, []string{}); err != nil {
		t.Errorf("RootCmd.RunE() returned unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Usage:") {
		t.Errorf("expected help output to contain 'Usage:', got: %s", out)
	}
}

func TestClickcheckHelpExitsZero(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	defer RootCmd.SetOut(nil)

	RootCmd.SetErr(bytes.NewBuffer(nil))
	defer RootCmd.SetErr(nil)

	RootCmd.SetArgs([]string{"--help"})
	defer RootCmd.SetArgs(nil)

	if err := Execute(); err != nil {
		t.Errorf("expected Execute() with --help to succeed, got error: %v", err)
	}

	if !strings.Contains(buf.String(), "Usage:") {
		t.Errorf("expected help output to contain 'Usage:', got: %s", buf.String())
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	RootCmd.SetErr(bytes.NewBuffer(nil))
	defer RootCmd.SetErr(nil)
	RootCmd.SetOut(bytes.NewBuffer(nil))
	defer RootCmd.SetOut(nil)

	RootCmd.SetArgs([]string{"blorp"})
	defer RootCmd.SetArgs(nil)

	err := Execute()
	if err == nil {
		t.Fatal("expected Execute() to return an error for unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected error to contain 'unknown command', got: %v", err)
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &ExitError{Code: 130, Err: cause})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatal("expected errors.As to find the ExitError")
	}
	if exitErr.Code != 130 {
		t.Errorf("Code = %d, want 130", exitErr.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("expected ExitError to unwrap to its cause")
	}
	if exitErr.Error() != "boom" {
		t.Errorf("Error() = %q, want %q", exitErr.Error(), "boom")
	}
}
