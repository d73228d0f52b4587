package store

import (
	"context"
	"fmt"

	"github.com/starford/cfgswap/internal/models"
)

// RecordAudit appends an entry to the apply history and returns its id.
func (s *Store) RecordAudit(ctx context.Context, e models.AuditEntry) (int64, error) {
	const query = `INSERT INTO audit_log (profile_id, backup_path, outcome, step, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.timestamp()
	}
	res, err := s.conn.ExecContext(ctx, query, e.ProfileID, e.BackupPath, e.Outcome, e.Step, e.Message, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: record audit: %w", err)
	}
	return res.LastInsertId()
}

// AuditEntries returns the most recent entries first. limit <= 0 means 50.
func (s *Store) AuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, profile_id, backup_path, outcome, step, message, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.BackupPath, &e.Outcome, &e.Step, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
