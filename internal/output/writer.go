package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/clickcheck/internal/click"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format string into a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Format returns the writer's format.
func (w *Writer) Format() Format { return w.format }

// Write outputs v in the configured format. In text format v is printed
// with its String method when it has one.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprint(w.w, s.String())
			return err
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// Record is the serialized form of an update record.
type Record struct {
	Package           string `json:"package" yaml:"package"`
	InstalledRevision int    `json:"installed_revision" yaml:"installed_revision"`
	RemoteRevision    int    `json:"remote_revision" yaml:"remote_revision"`
	Version           string `json:"version,omitempty" yaml:"version,omitempty"`
	Title             string `json:"title,omitempty" yaml:"title,omitempty"`
	DownloadURL       string `json:"download_url" yaml:"download_url"`
	DownloadSHA512    string `json:"download_sha512,omitempty" yaml:"download_sha512,omitempty"`
	BinarySize        int64  `json:"binary_size,omitempty" yaml:"binary_size,omitempty"`
	State             string `json:"state" yaml:"state"`
	Token             string `json:"token,omitempty" yaml:"token,omitempty"`
}

// NewRecord converts an update record.
func NewRecord(r click.UpdateRecord) Record {
	return Record{
		Package:           r.PackageName,
		InstalledRevision: r.InstalledRevision,
		RemoteRevision:    r.RemoteRevision,
		Version:           r.Version,
		Title:             r.Title,
		DownloadURL:       r.DownloadURL,
		DownloadSHA512:    r.DownloadSHA512,
		BinarySize:        r.BinarySize,
		State:             r.State.String(),
		Token:             r.Token,
	}
}

// CheckReport is the result of one check session.
type CheckReport struct {
	Session  string   `json:"session" yaml:"session"`
	Package  string   `json:"package,omitempty" yaml:"package,omitempty"`
	Outcome  string   `json:"outcome" yaml:"outcome"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
	Duration string   `json:"duration" yaml:"duration"`
	Records  []Record `json:"records" yaml:"records"`

	records []click.UpdateRecord
}

// NewCheckReport builds the report of a finished session.
func NewCheckReport(session, pkg, outcome string, err error, elapsed time.Duration, records []click.UpdateRecord) *CheckReport {
	rep := &CheckReport{
		Session:  session,
		Package:  pkg,
		Outcome:  outcome,
		Duration: elapsed.Round(time.Millisecond).String(),
		Records:  make([]Record, 0, len(records)),
		records:  records,
	}
	if err != nil {
		rep.Error = err.Error()
	}
	for _, r := range records {
		rep.Records = append(rep.Records, NewRecord(r))
	}
	return rep
}

// String renders the report as a table followed by a summary line.
func (r *CheckReport) String() string {
	out := RenderRecordTable(r.records)
	if len(r.records) > 0 {
		out += "\n" + RenderRecordSummary(r.records)
	}
	return out
}
