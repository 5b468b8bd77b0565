package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwell-systems/clickcheck/internal/config"
	"github.com/blackwell-systems/clickcheck/internal/output"
)

// testEnv is a config file, credentials and catalog for running commands
// end to end.
type testEnv struct {
	configFile     string
	dbFile         string
	metadataStatus atomic.Int32
	tokenHits      atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv(config.EnvMetadataURL, "")
	t.Setenv(config.EnvTokenURL, "")
	t.Setenv(config.EnvIgnoreCredentials, "")
	os.Unsetenv(config.EnvIgnoreCredentials)

	env := &testEnv{
		configFile: filepath.Join(dir, "config.yaml"),
		dbFile:     filepath.Join(dir, "clickcheck.db"),
	}
	env.metadataStatus.Store(http.StatusOK)

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/metadata":
			if status := int(env.metadataStatus.Load()); status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			fmt.Fprintf(w, `[
				{"name": "com.example.app", "revision": 7, "version": "2.0", "download_url": "%[1]s/download/app.click", "binary_filesize": 2048},
				{"name": "com.example.other", "revision": 3, "download_url": "%[1]s/download/other.click"}
			]`, srv.URL)
		case r.Method == http.MethodHead && strings.HasPrefix(r.URL.Path, "/download/"):
			env.tokenHits.Add(1)
			w.Header().Set("X-Click-Token", "tok-"+strings.TrimPrefix(r.URL.Path, "/download/"))
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	script := filepath.Join(dir, "click-installed")
	installed := `[{"name": "com.example.app", "revision": 6}, {"name": "com.example.other", "revision": 3}]`
	writeFile(t, script, "#!/bin/sh\necho '"+installed+"'\n", 0755)

	credsFile := filepath.Join(dir, "credentials.yaml")
	writeFile(t, credsFile, `consumer_key: consumer
consumer_secret: consumer-secret
token_key: token
token_secret: token-secret
`, 0600)

	writeFile(t, env.configFile, fmt.Sprintf(`metadata_url: %s/metadata
enumerator: %s
frameworks: [ubuntu-sdk-15.04]
architecture: amd64
credentials_file: %s
log_level: error
`, srv.URL, script, credsFile), 0644)

	return env
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// run executes the root command with the environment's config and
// database and returns its stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	oldConfig, oldDB, oldCheck, oldStatus := configPath, dbPath, checkOutput, statusOutput
	defer func() {
		configPath, dbPath, checkOutput, statusOutput = oldConfig, oldDB, oldCheck, oldStatus
	}()

	var stdout bytes.Buffer
	RootCmd.SetOut(&stdout)
	RootCmd.SetErr(bytes.NewBuffer(nil))
	defer RootCmd.SetOut(nil)
	defer RootCmd.SetErr(nil)

	RootCmd.SetArgs(append([]string{"--config", e.configFile, "--db", e.dbFile}, args...))
	defer RootCmd.SetArgs(nil)

	err := RootCmd.Execute()
	return stdout.String(), err
}

func TestCheckCommand_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "check", "-o", "json")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	var report output.CheckReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.Outcome != "completed" {
		t.Errorf("Outcome = %q, want completed", report.Outcome)
	}
	if report.Session == "" {
		t.Error("expected a session id")
	}
	if len(report.Records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(report.Records), report.Records)
	}

	rec := report.Records[0]
	if rec.Package != "com.example.app" || rec.InstalledRevision != 6 || rec.RemoteRevision != 7 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.State != "ready" || rec.Token != "tok-app.click" {
		t.Errorf("record state = %q token = %q, want ready/tok-app.click", rec.State, rec.Token)
	}
	if hits := env.tokenHits.Load(); hits != 1 {
		t.Errorf("token requests = %d, want 1", hits)
	}
}

func TestCheckCommand_TextOutput(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "check", "-o", "text")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out, "com.example.app") {
		t.Errorf("expected the update in the table, got:\n%s", out)
	}
	if strings.Contains(out, "com.example.other") {
		t.Errorf("package without a newer revision listed:\n%s", out)
	}
}

func TestCheckCommand_FailedExitsOne(t *testing.T) {
	env := newTestEnv(t)
	env.metadataStatus.Store(http.StatusInternalServerError)

	out, err := env.run(t, "check", "-o", "json")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected an ExitError, got %v", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.Code)
	}

	var report output.CheckReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.Outcome != "failed" || report.Error == "" {
		t.Errorf("Outcome = %q Error = %q, want failed with an error", report.Outcome, report.Error)
	}
	if hits := env.tokenHits.Load(); hits != 0 {
		t.Errorf("token requests = %d, want 0", hits)
	}
}

func TestCheckCommand_BadOutputFormat(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "check", "-o", "xml"); err == nil {
		t.Error("expected an error for an unknown output format")
	}
}

func TestStatusCommand_AfterCheck(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "check", "-o", "json"); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	out, err := env.run(t, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var status struct {
		Authenticated bool            `json:"authenticated"`
		LastCheck     *string         `json:"last_check"`
		CheckRequired bool            `json:"check_required"`
		Updates       []output.Record `json:"updates"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if !status.Authenticated {
		t.Error("expected authenticated with a valid credentials file")
	}
	if status.LastCheck == nil {
		t.Error("expected a last check time")
	}
	if status.CheckRequired {
		t.Error("expected no check to be required right after one")
	}
	if len(status.Updates) != 1 || status.Updates[0].Token != "tok-app.click" {
		t.Errorf("unexpected stored updates: %+v", status.Updates)
	}
}

func TestStatusCommand_NoHistory(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"Authenticated:   yes", "Last check:      never", "Check required:  yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestStatusCommand_WithoutCredentials(t *testing.T) {
	env := newTestEnv(t)
	if err := os.Remove(filepath.Join(filepath.Dir(env.configFile), "credentials.yaml")); err != nil {
		t.Fatalf("failed to remove credentials: %v", err)
	}

	start := time.Now()
	out, err := env.run(t, "status", "-o", "json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var status struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if status.Authenticated {
		t.Error("expected not authenticated without a credentials file")
	}
	// a missing file is an answer, not a timeout
	if elapsed := time.Since(start); elapsed >= credentialsTimeout {
		t.Errorf("status took %v, expected it not to wait for the timeout", elapsed)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.configFile, "metadata_url: ftp://example.com/metadata\n", 0644)

	_, err := env.run(t, "check")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected an invalid configuration error, got %v", err)
	}
}
