// Package output renders clickcheck results for the terminal.
//
// Tables use ANSI colour when stdout is a terminal and NO_COLOR is unset.
// The Writer emits the same data as JSON or YAML for scripts.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/clickcheck/internal/click"
	"github.com/blackwell-systems/clickcheck/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRecordTable renders one row per update record. Records are shown
// in the order given.
func RenderRecordTable(records []click.UpdateRecord) string {
	if len(records) == 0 {
		return "All packages are up to date.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-32s %-9s %-9s %-10s %-9s %s\n",
		"Package", "Installed", "Available", "Version", "Size", "State"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, r := range records {
		sb.WriteString(fmt.Sprintf("%-32s %-9d %-9d %-10s %-9s %s\n",
			truncate(r.PackageName, 32),
			r.InstalledRevision,
			r.RemoteRevision,
			truncate(orDash(r.Version), 10),
			formatSize(r.BinarySize),
			colorize(stateColor(r.State), formatState(r.State))))
	}

	return sb.String()
}

// RenderRecordSummary renders a one-line count of ready and failed records.
func RenderRecordSummary(records []click.UpdateRecord) string {
	var ready, failed int
	var size int64
	for _, r := range records {
		switch r.State {
		case click.StateReady:
			ready++
			size += r.BinarySize
		case click.StateFailed:
			failed++
		}
	}

	summary := fmt.Sprintf("%d %s available, %d ready to download (%s)",
		len(records), plural(len(records), "update", "updates"), ready, formatSize(size))
	if failed > 0 {
		summary += ", " + colorize(colorRed, fmt.Sprintf("%d without token", failed))
	}
	return summary + "\n"
}

// RenderCheckTable renders the check history, newest first.
func RenderCheckTable(runs []*store.CheckRun) string {
	if len(runs) == 0 {
		return "No checks recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-10s %-24s %-16s %-10s %-8s %s\n",
		"Check", "Package", "Finished", "Outcome", "Updates", "Failed"))
	sb.WriteString(strings.Repeat("─", 78))
	sb.WriteString("\n")

	for _, run := range runs {
		pkg := run.Package
		if pkg == "" {
			pkg = colorize(colorGray, fmt.Sprintf("%-24s", "(all)"))
		} else {
			pkg = fmt.Sprintf("%-24s", truncate(pkg, 24))
		}
		sb.WriteString(fmt.Sprintf("%-10s %s %-16s %s %-8d %d\n",
			truncate(run.ID, 8),
			pkg,
			formatRelativeTime(run.FinishedAt),
			colorize(outcomeColor(run.Outcome), fmt.Sprintf("%-10s", run.Outcome)),
			run.Records,
			run.Failures))
	}

	return sb.String()
}

func formatState(s click.RecordState) string {
	switch s {
	case click.StateReady:
		return "✓ ready"
	case click.StateFailed:
		return "✗ failed"
	case click.StateAwaitingToken:
		return "… awaiting"
	default:
		return "pending"
	}
}

func stateColor(s click.RecordState) string {
	switch s {
	case click.StateReady:
		return colorGreen
	case click.StateFailed:
		return colorRed
	case click.StateAwaitingToken:
		return colorYellow
	default:
		return colorGray
	}
}

func outcomeColor(outcome string) string {
	switch outcome {
	case "completed":
		return colorGreen
	case "failed":
		return colorRed
	default:
		return colorYellow
	}
}

// formatSize converts bytes to a human-readable string; zero is unknown.
func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// truncate truncates a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
