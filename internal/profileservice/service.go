// Package profileservice is the single entry point the HTTP API, the MCP
// server, and the CLI use for profile and backup operations.
package profileservice

import (
	"context"
	"log/slog"

	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/sse"
	"github.com/starford/cfgswap/internal/store"
)

// Service coordinates the record store and the apply engine.
type Service struct {
	store    *store.Store
	engine   *engine.Engine
	notifier engine.Notifier
	logger   *slog.Logger
}

// New creates a profile service. notifier may be nil.
func New(st *store.Store, eng *engine.Engine, notifier engine.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, engine: eng, notifier: notifier, logger: logger}
}

func (s *Service) publish(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishChange(kind, id)
	}
}

// Engine exposes the underlying engine.
func (s *Service) Engine() *engine.Engine { return s.engine }

// List returns every profile without raw content, ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Profile, error) {
	ps, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return stripContent(ps), nil
}

// Search returns profiles whose name or decoded content contains query.
func (s *Service) Search(ctx context.Context, query string) ([]models.Profile, error) {
	ps, err := s.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return stripContent(ps), nil
}

// Get returns one profile, content included.
func (s *Service) Get(ctx context.Context, idOrName string) (models.Profile, error) {
	return s.store.Resolve(ctx, idOrName)
}

// Create stores a new profile and reconciles, since its content may already
// be the one installed.
func (s *Service) Create(ctx context.Context, name, content string) (models.Profile, error) {
	p, err := s.store.Create(ctx, name, content)
	if err != nil {
		return models.Profile{}, err
	}
	s.reconcile(ctx)
	s.publish(sse.ProfileCreated, p.ID)
	return s.refresh(ctx, p), nil
}

// Update renames a profile and/or replaces its content.
func (s *Service) Update(ctx context.Context, idOrName string, params store.UpdateParams) (models.Profile, error) {
	cur, err := s.store.Resolve(ctx, idOrName)
	if err != nil {
		return models.Profile{}, err
	}
	p, err := s.store.Update(ctx, cur.ID, params)
	if err != nil {
		return models.Profile{}, err
	}
	if params.Content != nil {
		s.reconcile(ctx)
		p = s.refresh(ctx, p)
	}
	s.publish(sse.ProfileUpdated, p.ID)
	return p, nil
}

// Duplicate copies a profile under a new name.
func (s *Service) Duplicate(ctx context.Context, idOrName, newName string) (models.Profile, error) {
	src, err := s.store.Resolve(ctx, idOrName)
	if err != nil {
		return models.Profile{}, err
	}
	p, err := s.store.Duplicate(ctx, src.ID, newName)
	if err != nil {
		return models.Profile{}, err
	}
	s.publish(sse.ProfileCreated, p.ID)
	return p, nil
}

// Delete removes a profile that is not currently installed.
func (s *Service) Delete(ctx context.Context, idOrName string) (models.Profile, error) {
	return s.engine.DeleteProfile(ctx, idOrName)
}

// Apply installs a profile into the target file.
func (s *Service) Apply(ctx context.Context, idOrName string, opts engine.ApplyOptions) (*engine.Result, error) {
	return s.engine.Apply(ctx, idOrName, opts)
}

// Restore installs a backup into the target file.
func (s *Service) Restore(ctx context.Context, backupPath string) (*engine.Result, error) {
	return s.engine.Restore(ctx, backupPath)
}

// Status reports the target file and the active profile.
func (s *Service) Status(ctx context.Context) (*engine.Status, error) {
	return s.engine.Status(ctx)
}

// Reconcile recomputes the active profile and returns it, or nil for none.
func (s *Service) Reconcile(ctx context.Context) (*models.Profile, error) {
	id, err := s.engine.Reconcile(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p = p.WithoutContent()
	return &p, nil
}

// Backups lists backups newest first.
func (s *Service) Backups(ctx context.Context) ([]models.BackupRecord, error) {
	return s.engine.Backups(ctx)
}

// CreateBackup snapshots the target now.
func (s *Service) CreateBackup(ctx context.Context) (models.BackupRecord, error) {
	return s.engine.CreateBackup(ctx)
}

// Cleanup keeps the keep newest backups; keep < 0 uses the configured retention.
func (s *Service) Cleanup(ctx context.Context, keep int) (engine.PruneResult, error) {
	if keep < 0 {
		keep = s.engine.Retention()
	}
	return s.engine.Prune(ctx, keep)
}

// History returns recent apply and restore outcomes.
func (s *Service) History(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.engine.History(ctx, limit)
}

func (s *Service) reconcile(ctx context.Context) {
	if _, err := s.engine.Reconcile(ctx); err != nil {
		s.logger.Warn("profileservice: reconcile failed", slog.String("error", err.Error()))
	}
}

func (s *Service) refresh(ctx context.Context, p models.Profile) models.Profile {
	if fresh, err := s.store.Get(ctx, p.ID); err == nil {
		return fresh
	}
	return p
}

func stripContent(ps []models.Profile) []models.Profile {
	out := make([]models.Profile, len(ps))
	for i, p := range ps {
		out[i] = p.WithoutContent()
	}
	return out
}
