package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/filelock"
	"github.com/starford/cfgswap/internal/models"
)

// Backups lists backup files newest first, enriched from the backup log.
// Files with no log row get their hash computed from disk.
func (e *Engine) Backups(ctx context.Context) ([]models.BackupRecord, error) {
	files, err := e.backups.List()
	if err != nil {
		return nil, err
	}
	logged, err := e.store.BackupRecords(ctx)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]models.BackupRecord, len(logged))
	for _, r := range logged {
		byPath[r.Path] = r
	}

	for i, f := range files {
		if r, ok := byPath[f.Path]; ok {
			files[i].OriginalHash = r.OriginalHash
			files[i].AppliedProfileID = r.AppliedProfileID
			continue
		}
		if data, err := os.ReadFile(f.Path); err == nil {
			files[i].OriginalHash, _ = checksum.ContentOrRaw(data)
		}
	}
	return files, nil
}

// CreateBackup snapshots the current target on demand.
func (e *Engine) CreateBackup(ctx context.Context) (models.BackupRecord, error) {
	lock, err := filelock.Acquire(ctx, e.target, e.lockOpts)
	if err != nil {
		return models.BackupRecord{}, fmt.Errorf("engine: backup: %w", err)
	}
	defer lock.Release()

	rec, err := e.backups.Create()
	if err != nil {
		return models.BackupRecord{}, err
	}
	e.metrics.ObserveBackup(rec.Size)
	if err := e.store.LogBackup(ctx, rec); err != nil {
		e.logger.Warn("engine: backup log failed", slog.String("error", err.Error()))
	}
	e.logger.Info("engine: backup created", slog.String("path", rec.Path))
	return rec, nil
}

// PruneResult reports a retention pass.
type PruneResult struct {
	Keep     int      `json:"keep" yaml:"keep"`
	Removed  []string `json:"removed" yaml:"removed"`
	Failures []string `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Prune keeps the keep newest backups and deletes the rest along with their
// log rows. Per-file failures are reported, not returned as errors.
func (e *Engine) Prune(ctx context.Context, keep int) (PruneResult, error) {
	res, err := e.backups.Cleanup(keep)
	if err != nil {
		return PruneResult{}, err
	}
	out := PruneResult{Keep: keep, Removed: res.Removed}
	if out.Removed == nil {
		out.Removed = []string{}
	}
	for _, path := range res.Removed {
		if err := e.store.DeleteBackupRecord(ctx, path); err != nil {
			out.Failures = append(out.Failures, err.Error())
		}
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	e.metrics.ObserveCleanup(len(res.Removed), len(res.Failures))
	return out, nil
}

// History returns the most recent audit entries.
func (e *Engine) History(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return e.store.AuditEntries(ctx, limit)
}
