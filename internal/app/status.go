package app

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/logger"
	"github.com/blackwell-systems/clickcheck/internal/output"
	"github.com/blackwell-systems/clickcheck/internal/sso"
	"github.com/blackwell-systems/clickcheck/internal/store"
	"github.com/blackwell-systems/clickcheck/internal/watcher"
)

// credentialsTimeout bounds the wait for the credentials service.
const credentialsTimeout = 3 * time.Second

var (
	statusOutput string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show credentials, check history and stored updates",
		Long: `Show whether credentials are available, when the last full check
completed, whether a new check is due, and the updates found so far.`,
		Example: `  clickcheck status
  clickcheck status -o json`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text, json, yaml")
}

// statusReport is the machine-readable form of the status command.
type statusReport struct {
	Authenticated bool            `json:"authenticated" yaml:"authenticated"`
	LastCheck     *time.Time      `json:"last_check,omitempty" yaml:"last_check,omitempty"`
	CheckRequired bool            `json:"check_required" yaml:"check_required"`
	CheckInterval string          `json:"check_interval" yaml:"check_interval"`
	WatchRunning  bool            `json:"watch_running" yaml:"watch_running"`
	Updates       []output.Record `json:"updates" yaml:"updates"`

	records []click.UpdateRecord
	checks  []*store.CheckRun
}

func (r *statusReport) String() string {
	last := "never"
	if r.LastCheck != nil {
		last = humanize.Time(*r.LastCheck)
	}
	auth := "no"
	if r.Authenticated {
		auth = "yes"
	}
	due := "no"
	if r.CheckRequired {
		due = "yes"
	}
	watch := "stopped"
	if r.WatchRunning {
		watch = "running"
	}

	s := fmt.Sprintf("Authenticated:   %s\n", auth)
	s += fmt.Sprintf("Last check:      %s\n", last)
	s += fmt.Sprintf("Check required:  %s (every %s)\n", due, r.CheckInterval)
	s += fmt.Sprintf("Watch daemon:    %s\n", watch)
	s += "\n" + output.RenderRecordTable(r.records)
	if len(r.checks) > 0 {
		s += "\nRecent checks:\n" + output.RenderCheckTable(r.checks)
	}
	return s
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
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

	creds := sso.NewFileService(cfg.CredentialsFile, nil)
	defer creds.Close()

	orch, err := newOrchestrator(cfg, creds, db)
	if err != nil {
		return err
	}
	defer orch.Close()

	report := &statusReport{
		CheckRequired: orch.IsCheckRequired(),
		CheckInterval: cfg.CheckInterval.String(),
	}

	select {
	case <-orch.CredentialsResolved():
	case <-time.After(credentialsTimeout):
		logger.Logger().Warn("credentials service did not answer")
	}
	report.Authenticated = orch.Authenticated()

	last, err := db.LastCompletedCheck()
	if err != nil {
		return err
	}
	if !last.IsZero() {
		report.LastCheck = &last
	}

	if report.records, err = db.ListRecords(); err != nil {
		return err
	}
	if report.checks, err = db.ListChecks(5); err != nil {
		return err
	}
	report.Updates = make([]output.Record, 0, len(report.records))
	for _, r := range report.records {
		report.Updates = append(report.Updates, output.NewRecord(r))
	}

	if pidFile, err := getDefaultPIDFile(); err == nil {
		report.WatchRunning, _ = watcher.IsDaemonRunning(pidFile)
	}

	return output.NewWriter(cmd.OutOrStdout(), format).Write(report)
}
