package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================
// Upload history
// =====================

// Upload describes one ingest attempt. Failed uploads are recorded too, so
// the history endpoint explains why a slot still serves the previous data.
type Upload struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Filename   string  `json:"filename"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"durationSeconds"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	UploadedAt int64   `json:"uploadedAt"`
}

// RecordUpload appends one catalog row. The caller controls the status
// value ("loaded" or "rejected").
func (db *Database) RecordUpload(ctx context.Context, up Upload) error {
	if strings.TrimSpace(up.ID) == "" {
		return nil
	}
	if up.UploadedAt == 0 {
		up.UploadedAt = time.Now().Unix()
	}

	stmt := fmt.Sprintf(`INSERT INTO upload_history (id, kind, filename, channels, duration_seconds, status, message, uploaded_at)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3),
		placeholder(db.Driver, 4), placeholder(db.Driver, 5), placeholder(db.Driver, 6),
		placeholder(db.Driver, 7), placeholder(db.Driver, 8))

	if _, err := db.DB.ExecContext(ctx, stmt,
		up.ID, up.Kind, up.Filename, up.Channels, up.Duration, up.Status, up.Message, up.UploadedAt); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// RecentUploads returns the newest catalog rows, newest first.
func (db *Database) RecentUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT id, kind, filename, channels, duration_seconds, status, message, uploaded_at
FROM upload_history ORDER BY uploaded_at DESC LIMIT %s`, placeholder(db.Driver, 1))

	rows, err := db.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var up Upload
		var message sql.NullString
		if err := rows.Scan(&up.ID, &up.Kind, &up.Filename, &up.Channels, &up.Duration, &up.Status, &message, &up.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		up.Message = message.String
		uploads = append(uploads, up)
	}
	return uploads, rows.Err()
}
