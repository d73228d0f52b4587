// Package engine applies stored profiles to the target file.
//
// Every overwrite of the target follows the same sequence under an exclusive
// file lock: back up the current bytes, install the new bytes atomically,
// then recompute which profile is active. A failure before the rename leaves
// the target byte-identical to its prior state.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/cfgswap/internal/backup"
	"github.com/starford/cfgswap/internal/filelock"
	"github.com/starford/cfgswap/internal/metrics"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/storage"
)

// DefaultTimeout bounds a single apply or restore, lock waiting included.
const DefaultTimeout = 30 * time.Second

// DefaultRetention is the number of backups kept after each apply.
const DefaultRetention = 10

// Store is the subset of the record store the engine depends on.
type Store interface {
	Resolve(ctx context.Context, idOrName string) (models.Profile, error)
	Delete(ctx context.Context, id string) (bool, error)
	Active(ctx context.Context) (*models.Profile, error)
	LogBackup(ctx context.Context, rec models.BackupRecord) error
	BackupRecords(ctx context.Context) ([]models.BackupRecord, error)
	DeleteBackupRecord(ctx context.Context, path string) error
	RecordAudit(ctx context.Context, e models.AuditEntry) (int64, error)
	AuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// Reconciler recomputes the active profile from the target file.
type Reconciler interface {
	Reconcile(ctx context.Context, prefer string) (string, error)
}

// Notifier receives change notifications after successful operations.
type Notifier interface {
	PublishChange(kind, id string)
}

type nopNotifier struct{}

func (nopNotifier) PublishChange(string, string) {}

// Engine drives apply, restore, and the supporting operations for one target.
type Engine struct {
	target    string
	store     Store
	files     storage.Provider
	backups   *backup.Manager
	detector  Reconciler
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	lockOpts  filelock.Options
	timeout   time.Duration
	retention int
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLockOptions sets the target lock retry policy.
func WithLockOptions(o filelock.Options) Option {
	return func(e *Engine) { e.lockOpts = o }
}

// WithTimeout bounds each apply or restore.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithRetention sets how many backups cleanup keeps.
func WithRetention(n int) Option {
	return func(e *Engine) { e.retention = n }
}

// New returns an Engine for the target managed by backups.
func New(st Store, files storage.Provider, backups *backup.Manager, det Reconciler, opts ...Option) *Engine {
	e := &Engine{
		target:    backups.Target(),
		store:     st,
		files:     files,
		backups:   backups,
		detector:  det,
		notifier:  nopNotifier{},
		logger:    slog.Default(),
		lockOpts:  filelock.DefaultOptions(),
		timeout:   DefaultTimeout,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Target returns the managed file path.
func (e *Engine) Target() string { return e.target }

// Retention returns the configured keep-count.
func (e *Engine) Retention() int { return e.retention }

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}
