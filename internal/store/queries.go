package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/clickcheck/internal/click"
)

// Update record operations

// SaveRecords inserts or replaces the given records in one transaction.
func (s *Store) SaveRecords(records []click.UpdateRecord, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO updates
		(name, revision, installed_revision, version, title, download_url, download_sha512,
		 binary_size, changelog, token, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, r := range records {
		_, err := tx.Exec(query,
			r.PackageName,
			r.RemoteRevision,
			r.InstalledRevision,
			r.Version,
			r.Title,
			r.DownloadURL,
			r.DownloadSHA512,
			r.BinarySize,
			r.Changelog,
			r.Token,
			r.State.String(),
			at.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return wrapErr(err, "failed to save update %s", r.PackageName)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit updates: %w", err)
	}
	return nil
}

// GetRecord returns the newest stored revision for a package.
func (s *Store) GetRecord(name string) (*click.UpdateRecord, error) {
	query := recordColumns + `
		FROM updates
		WHERE name = ?
		ORDER BY revision DESC
		LIMIT 1
	`

	record, err := scanRecord(s.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("update for %s not found", name)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get update %s", name)
	}
	return record, nil
}

// ListRecords returns the newest stored revision of every package that
// is still current, sorted by name. Records saved before the last
// completed full check are stale: that check no longer reported them.
func (s *Store) ListRecords() ([]click.UpdateRecord, error) {
	query := `
		WITH current AS (
			SELECT * FROM updates
			WHERE updated_at >= COALESCE(
				(SELECT MAX(finished_at) FROM checks WHERE outcome = 'completed' AND package = ''),
				'')
		)` + recordColumns + `
		FROM current u
		WHERE revision = (SELECT MAX(revision) FROM current WHERE name = u.name)
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr(err, "failed to list updates")
	}
	defer rows.Close()

	var records []click.UpdateRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update row: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating updates: %w", err)
	}

	return records, nil
}

// DeleteRecords removes every stored revision of a package.
func (s *Store) DeleteRecords(name string) error {
	if _, err := s.db.Exec("DELETE FROM updates WHERE name = ?", name); err != nil {
		return wrapErr(err, "failed to delete updates for %s", name)
	}
	return nil
}

const recordColumns = `
		SELECT name, revision, installed_revision, version, title, download_url,
		       download_sha512, binary_size, changelog, token, state`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*click.UpdateRecord, error) {
	var r click.UpdateRecord
	var version, title, downloadURL, sha, changelog, token sql.NullString
	var size sql.NullInt64
	var state string

	err := row.Scan(
		&r.PackageName,
		&r.RemoteRevision,
		&r.InstalledRevision,
		&version,
		&title,
		&downloadURL,
		&sha,
		&size,
		&changelog,
		&token,
		&state,
	)
	if err != nil {
		return nil, err
	}

	r.Version = version.String
	r.Title = title.String
	r.DownloadURL = downloadURL.String
	r.DownloadSHA512 = sha.String
	r.BinarySize = size.Int64
	r.Changelog = changelog.String
	r.Token = token.String
	r.State, err = click.ParseRecordState(state)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", r.PackageName, err)
	}
	return &r, nil
}

// Check history operations

// InsertCheck records a finished check session.
func (s *Store) InsertCheck(run *CheckRun) error {
	query := `
		INSERT INTO checks (id, package, started_at, finished_at, outcome, records, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID,
		run.Package,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.Outcome,
		run.Records,
		run.Failures,
	)
	if err != nil {
		return wrapErr(err, "failed to insert check %s", run.ID)
	}
	return nil
}

// ListChecks returns the most recent check sessions, newest first.
func (s *Store) ListChecks(limit int) ([]*CheckRun, error) {
	query := `
		SELECT id, package, started_at, finished_at, outcome, records, failures
		FROM checks
		ORDER BY finished_at DESC, started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, wrapErr(err, "failed to list checks")
	}
	defer rows.Close()

	var runs []*CheckRun
	for rows.Next() {
		var run CheckRun
		var startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &run.Package, &startedAt, &finishedAt, &run.Outcome, &run.Records, &run.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan check row: %w", err)
		}

		run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", run.ID, err)
		}
		run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for %s: %w", run.ID, err)
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checks: %w", err)
	}

	return runs, nil
}

// LastCompletedCheck returns when the newest full check completed, or the
// zero time if none has.
func (s *Store) LastCompletedCheck() (time.Time, error) {
	var finishedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(finished_at) FROM checks
		WHERE outcome = 'completed' AND package = ''
	`).Scan(&finishedAt)
	if err != nil {
		return time.Time{}, wrapErr(err, "failed to get last check")
	}
	if !finishedAt.Valid {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, finishedAt.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last check time: %w", err)
	}
	return t, nil
}
