package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/clickcheck/internal/logger"
	"github.com/blackwell-systems/clickcheck/internal/output"
	"github.com/blackwell-systems/clickcheck/internal/updater"
	"github.com/blackwell-systems/clickcheck/internal/watcher"
)

var (
	watchInterval    time.Duration
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-check for updates whenever a check is due",
		Long: `Keep running and start a full update check whenever the check interval
has passed since the last completed one.

Every --interval the watcher asks whether a check is due; the check interval
itself is the check_interval configuration key (default 24h).

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon

Stopping cancels a running check and waits for it to end.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  clickcheck watch

  # Run as background daemon
  clickcheck watch --daemon

  # Stop running daemon
  clickcheck watch --stop

  # Use custom PID and log files
  clickcheck watch --daemon --pid-file /tmp/watch.pid --log-file /tmp/watch.log`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "how often to ask whether a check is due")
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.clickcheck/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.clickcheck/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}

	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	switch {
	case watchStop:
		return stopWatchDaemon(cmd)
	case watchDaemon:
		return startWatchDaemon(cmd)
	case watchDaemonChild:
		defer watcher.RemovePIDFile(watchPIDFile)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Watching for due update checks (press Ctrl+C to stop)...")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	return runWatchLoop(sigCh)
}

// runWatchLoop checks whenever one is due until stop delivers a value.
func runWatchLoop(stop <-chan os.Signal) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	creds := newCredentials(cfg)
	defer creds.Close()

	orch, err := newOrchestrator(cfg, creds, db)
	if err != nil {
		return err
	}
	defer orch.Close()

	log := logger.Logger()
	orch.Subscribe(func(ev updater.Event) {
		switch {
		case ev.Kind == updater.EventAuthenticatedChanged:
			log.Infof("authenticated: %t", ev.Authenticated)
		case ev.Kind == updater.EventCheckFailed:
			log.Warnf("check %s failed: %d updates, %d failures: %v", ev.Session, ev.Records, ev.Failures, ev.Err)
		case ev.Kind.Terminal():
			log.Infof("check %s %s: %d updates", ev.Session, ev.Kind, ev.Records)
		}
	})

	sched, err := watcher.New(orch, watchInterval, log)
	if err != nil {
		return err
	}
	sched.Start()

	sig := <-stop
	log.Infof("received %v, shutting down", sig)
	sched.Stop()

	// Close cancels a running check and waits for its terminal event.
	return orch.Close()
}

func stopWatchDaemon(cmd *cobra.Command) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner(cmd.ErrOrStderr(), "Stopping daemon")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop("")
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.Stop("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	// Fail before detaching when the configuration is unusable.
	if _, err := loadConfig(); err != nil {
		return err
	}

	spinner := output.NewSpinner(cmd.ErrOrStderr(), "Starting daemon")
	spinner.Start()
	pid, err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonArgs()...)
	if err != nil {
		spinner.Stop("")
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.Stop("✓ Daemon started")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nUpdate check daemon started (PID %d)\n", pid)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: clickcheck watch --stop\n")
	return nil
}

// daemonArgs are the arguments of the detached child process.
func daemonArgs() []string {
	args := []string{
		"watch", "--daemon-child",
		"--interval", watchInterval.String(),
		"--pid-file", watchPIDFile,
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}
