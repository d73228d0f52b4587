package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/cfgswap/internal/models"
)

// LogBackup records a backup file. Re-logging the same path is a no-op.
func (s *Store) LogBackup(ctx context.Context, rec models.BackupRecord) error {
	const query = `INSERT OR IGNORE INTO backups (path, original_hash, applied_profile_id, created_at) VALUES (?, ?, ?, ?)`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.timestamp()
	}
	if _, err := s.conn.ExecContext(ctx, query, rec.Path, rec.OriginalHash, rec.AppliedProfileID, createdAt.UTC()); err != nil {
		return fmt.Errorf("store: log backup: %w", err)
	}
	return nil
}

// BackupRecords returns the logged backups, newest first.
func (s *Store) BackupRecords(ctx context.Context) ([]models.BackupRecord, error) {
	const query = `SELECT path, original_hash, applied_profile_id, created_at FROM backups ORDER BY created_at DESC, path DESC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: backups: %w", err)
	}
	defer rows.Close()

	var out []models.BackupRecord
	for rows.Next() {
		var (
			rec       models.BackupRecord
			profileID sql.NullString
		)
		if err := rows.Scan(&rec.Path, &rec.OriginalHash, &profileID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if profileID.Valid {
			id := profileID.String
			rec.AppliedProfileID = &id
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBackupRecord drops the log row for a removed backup file.
func (s *Store) DeleteBackupRecord(ctx context.Context, path string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM backups WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete backup record: %w", err)
	}
	return nil
}
