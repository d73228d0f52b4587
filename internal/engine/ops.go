package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/filelock"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/sse"
)

// DeleteProfile removes a profile unless it is the one currently installed
// in the target. The active flag is recomputed first under the target lock.
func (e *Engine) DeleteProfile(ctx context.Context, idOrName string) (models.Profile, error) {
	p, err := e.store.Resolve(ctx, idOrName)
	if err != nil {
		return models.Profile{}, err
	}

	lock, err := filelock.Acquire(ctx, e.target, e.lockOpts)
	if err != nil {
		return models.Profile{}, fmt.Errorf("engine: delete: %w", err)
	}
	defer lock.Release()

	if _, err := e.detector.Reconcile(ctx, ""); err != nil {
		return models.Profile{}, fmt.Errorf("engine: delete: %w", err)
	}
	ok, err := e.store.Delete(ctx, p.ID)
	if err != nil {
		return models.Profile{}, err
	}
	if !ok {
		return models.Profile{}, fmt.Errorf("engine: profile %q: %w", idOrName, apperr.ErrNotFound)
	}

	e.logger.Info("engine: profile deleted", slog.String("id", p.ID), slog.String("name", p.Name))
	e.notifier.PublishChange(sse.ProfileDeleted, p.ID)
	return p, nil
}

// Reconcile recomputes the active profile from the target file.
func (e *Engine) Reconcile(ctx context.Context) (string, error) {
	id, err := e.detector.Reconcile(ctx, "")
	if err != nil {
		return "", err
	}
	e.SyncActiveMetric(ctx, id)
	return id, nil
}

// SyncActiveMetric points the active-profile gauge at id ("" for none).
func (e *Engine) SyncActiveMetric(ctx context.Context, id string) {
	if e.metrics == nil {
		return
	}
	if id == "" {
		e.metrics.SetActive("")
		return
	}
	if p, err := e.store.Resolve(ctx, id); err == nil {
		e.metrics.SetActive(p.Name)
	}
}

// Status is a snapshot of the target file and the profile it matches.
type Status struct {
	Target      string          `json:"target" yaml:"target"`
	Exists      bool            `json:"exists" yaml:"exists"`
	Size        int64           `json:"size" yaml:"size"`
	ModTime     *time.Time      `json:"mod_time,omitempty" yaml:"mod_time,omitempty"`
	Hash        string          `json:"hash,omitempty" yaml:"hash,omitempty"`
	Valid       bool            `json:"valid" yaml:"valid"`
	Active      *models.Profile `json:"active,omitempty" yaml:"active,omitempty"`
	BackupDir   string          `json:"backup_dir" yaml:"backup_dir"`
	BackupCount int             `json:"backup_count" yaml:"backup_count"`
	Retention   int             `json:"retention" yaml:"retention"`
}

// Status reports on the target file, reconciling the active flag on the way.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Target:    e.target,
		BackupDir: e.backups.Dir(),
		Retention: e.retention,
	}

	info, err := os.Stat(e.target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("engine: status: %w", err)
	default:
		st.Exists = true
		st.Size = info.Size()
		mt := info.ModTime().UTC()
		st.ModTime = &mt
		data, err := e.files.Read(e.target)
		if err != nil {
			return nil, fmt.Errorf("engine: status: %w", err)
		}
		st.Hash, st.Valid = checksum.ContentOrRaw(data)
	}

	id, err := e.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: status: %w", err)
	}
	if id != "" {
		p, err := e.store.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("engine: status: %w", err)
		}
		p = p.WithoutContent()
		st.Active = &p
	}

	list, err := e.backups.List()
	if err != nil {
		return nil, fmt.Errorf("engine: status: %w", err)
	}
	st.BackupCount = len(list)
	return st, nil
}
