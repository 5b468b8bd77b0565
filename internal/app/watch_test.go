package app

import (
	"testing"
	"time"
)

func TestWatchCommand(t *testing.T) {
	if watchCmd.Use != "watch" {
		t.Errorf("expected Use to be 'watch', got '%s'", watchCmd.Use)
	}

	if watchCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if watchCmd.Example == "" {
		t.Error("expected Example to be set")
	}

	if watchCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestWatchCommandFlags(t *testing.T) {
	tests := []struct {
		flagName     string
		shouldHidden bool
	}{
		{flagName: "interval"},
		{flagName: "daemon"},
		{flagName: "daemon-child", shouldHidden: true},
		{flagName: "pid-file"},
		{flagName: "log-file"},
		{flagName: "stop"},
	}

	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := watchCmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("expected flag '%s' to exist", tt.flagName)
			}
			if flag.Hidden != tt.shouldHidden {
				t.Errorf("flag '%s' hidden = %v, want %v", tt.flagName, flag.Hidden, tt.shouldHidden)
			}
		})
	}
}

func TestDaemonArgs(t *testing.T) {
	oldInterval, oldPID, oldConfig, oldDB, oldVerbose := watchInterval, watchPIDFile, configPath, dbPath, verbose
	defer func() {
		watchInterval, watchPIDFile, configPath, dbPath, verbose = oldInterval, oldPID, oldConfig, oldDB, oldVerbose
	}()

	watchInterval = 5 * time.Minute
	watchPIDFile = "/tmp/watch.pid"
	configPath = ""
	dbPath = ""
	verbose = false

	got := daemonArgs()
	want := []string{"watch", "--daemon-child", "--interval", "5m0s", "--pid-file", "/tmp/watch.pid"}
	if !equalArgs(got, want) {
		t.Errorf("daemonArgs() = %v, want %v", got, want)
	}

	configPath = "/etc/clickcheck.yaml"
	dbPath = "/tmp/c.db"
	verbose = true
	got = daemonArgs()
	want = append(want, "--config", "/etc/clickcheck.yaml", "--db", "/tmp/c.db", "--verbose")
	if !equalArgs(got, want) {
		t.Errorf("daemonArgs() = %v, want %v", got, want)
	}
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
