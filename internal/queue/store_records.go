package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"markerflow/internal/manifest"
)

// RecordExtraction stores a fresh extraction as idle. Re-recording the same
// folder resets its upload history.
func (s *Store) RecordExtraction(ctx context.Context, sentinelPath string, info manifest.Info) error {
	now := formatTime(time.Now())
	extracted := info.CreatedAt
	if extracted.IsZero() {
		extracted = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO extractions (
            sentinel_path, extract_id, source_path, manifest_path, platform,
            status, profile, error_message, attempts, extracted_at, updated_at, uploaded_at
        ) VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, 0, ?, ?, NULL)
        ON CONFLICT(sentinel_path) DO UPDATE SET
            extract_id = excluded.extract_id,
            source_path = excluded.source_path,
            manifest_path = excluded.manifest_path,
            platform = excluded.platform,
            status = excluded.status,
            profile = NULL,
            error_message = NULL,
            attempts = 0,
            extracted_at = excluded.extracted_at,
            updated_at = excluded.updated_at,
            uploaded_at = NULL`,
		sentinelPath,
		info.ID,
		info.Source,
		info.ManifestPath,
		string(info.Platform),
		StatusIdle,
		formatTime(extracted),
		now,
	)
	if err != nil {
		return fmt.Errorf("record extraction: %w", err)
	}
	return nil
}

// MarkStatus records an upload transition. Entering uploading counts an
// attempt and success stamps the upload time.
func (s *Store) MarkStatus(ctx context.Context, sentinelPath string, status Status, profile, errMsg string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	now := formatTime(time.Now())
	var uploadedAt any
	if status == StatusSuccess {
		uploadedAt = now
	}
	attempt := 0
	if status == StatusUploading {
		attempt = 1
	}
	res, err := s.exec(ctx,
		`UPDATE extractions SET
            status = ?,
            profile = COALESCE(?, profile),
            error_message = ?,
            attempts = attempts + ?,
            updated_at = ?,
            uploaded_at = COALESCE(?, uploaded_at)
        WHERE sentinel_path = ?`,
		status,
		nullableString(profile),
		nullableString(errMsg),
		attempt,
		now,
		uploadedAt,
		sentinelPath,
	)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark %s: %w", status, ErrNotRecorded)
	}
	return nil
}

// ErrNotRecorded reports a status change for an extraction the store has
// never seen.
var ErrNotRecorded = errors.New("extraction not recorded")

// Get returns the record for sentinelPath, or nil when absent.
func (s *Store) Get(ctx context.Context, sentinelPath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM extractions WHERE sentinel_path = ?", sentinelPath)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get extraction: %w", err)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM extractions"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY extracted_at DESC, sentinel_path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats counts records by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM extractions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes the record for sentinelPath.
func (s *Store) Remove(ctx context.Context, sentinelPath string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM extractions WHERE sentinel_path = ?`, sentinelPath)
	if err != nil {
		return false, fmt.Errorf("remove extraction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneMissing deletes records whose extract record file no longer exists.
func (s *Store) PruneMissing(ctx context.Context) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, rec := range records {
		if _, err := os.Stat(rec.SentinelPath); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		removed, err := s.Remove(ctx, rec.SentinelPath)
		if err != nil {
			return pruned, err
		}
		if removed {
			pruned++
		}
	}
	return pruned, nil
}
