package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/clickcheck/internal/output"
	"github.com/blackwell-systems/clickcheck/internal/updater"
)

var (
	checkOutput string

	checkCmd = &cobra.Command{
		Use:   "check [package]",
		Short: "Check installed packages for updates",
		Long: `Run one update check.

The installed click packages are enumerated, the catalog is asked for their
latest revisions, and a download token is requested for every package with a
newer revision. With a package argument only that package is checked.

Press Ctrl+C to cancel; the check ends once every pending request has
stopped.

Exit status is 1 when the check failed and 130 when it was canceled.`,
		Example: `  # Check every installed package
  clickcheck check

  # Check one package
  clickcheck check com.example.app

  # Print the results as YAML
  clickcheck check -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheck,
	}
)

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "output format: text, json, yaml")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(checkOutput)
	if err != nil {
		return err
	}

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

	done := make(chan updater.Event, 1)
	orch.Subscribe(func(ev updater.Event) {
		if !ev.Kind.Terminal() {
			return
		}
		select {
		case done <- ev:
		default:
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	pkg := ""
	if len(args) == 1 {
		pkg = args[0]
	}

	spinner := output.NewSpinner(cmd.ErrOrStderr(), "Checking for updates")
	spinner.Start()
	if pkg != "" {
		spinner.Update("Checking " + pkg + " for updates")
		orch.CheckPackage(pkg)
	} else {
		orch.Check()
	}

	var ev updater.Event
wait:
	for {
		select {
		case ev = <-done:
			break wait
		case <-sigCh:
			spinner.Update("Canceling")
			orch.Cancel()
		}
	}
	spinner.Stop("")

	outcome := strings.TrimPrefix(ev.Kind.String(), "check-")
	report := output.NewCheckReport(ev.Session, ev.Package, outcome, ev.Err, spinner.Elapsed(), orch.Records())
	if err := output.NewWriter(cmd.OutOrStdout(), format).Write(report); err != nil {
		return err
	}

	switch ev.Kind {
	case updater.EventCheckFailed:
		return &ExitError{Code: 1, Err: checkFailure(ev)}
	case updater.EventCheckCanceled:
		return &ExitError{Code: 130, Err: errors.New("check canceled")}
	}
	return nil
}

func checkFailure(ev updater.Event) error {
	if ev.Err != nil {
		return fmt.Errorf("check failed: %w", ev.Err)
	}
	return fmt.Errorf("check failed: %d of %d download tokens could not be obtained", ev.Failures, ev.Records)
}
