package queue

import (
	"database/sql"
	"errors"
	"time"

	"markerflow/internal/manifest"
)

const recordColumns = "sentinel_path, extract_id, source_path, manifest_path, platform, status, profile, error_message, attempts, extracted_at, updated_at, uploaded_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec         Record
		platform    string
		status      string
		profile     sql.NullString
		errMsg      sql.NullString
		extractedAt string
		updatedAt   string
		uploadedAt  sql.NullString
	)
	if err := scanner.Scan(
		&rec.SentinelPath,
		&rec.ExtractID,
		&rec.SourcePath,
		&rec.ManifestPath,
		&platform,
		&status,
		&profile,
		&errMsg,
		&rec.Attempts,
		&extractedAt,
		&updatedAt,
		&uploadedAt,
	); err != nil {
		return nil, err
	}
	rec.Platform = manifest.Platform(platform)
	rec.Status = Status(status)
	rec.Profile = profile.String
	rec.ErrorMessage = errMsg.String
	if t, err := parseTimeString(extractedAt); err == nil {
		rec.ExtractedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	if uploadedAt.Valid {
		if t, err := parseTimeString(uploadedAt.String); err == nil {
			rec.UploadedAt = &t
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := range count {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
