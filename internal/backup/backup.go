// Package backup manages timestamped snapshots of the target file.
//
// Backups are named "<basename>.backup.<YYYYMMDDTHHMMSSZ>" in UTC. A second
// backup within the same second gets a ".N" suffix rather than replacing the
// first, so the name sorts by creation order and no snapshot is ever lost.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/storage"
)

// TimeLayout is the sortable timestamp embedded in backup names.
const TimeLayout = "20060102T150405Z"

// Manager creates, lists, and prunes backups of one target file.
type Manager struct {
	target  string
	dir     string
	pattern *regexp.Regexp
	now     func() time.Time
	remove  func(string) error
	syncDir func(string) error
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger for cleanup warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRemove overrides file deletion during cleanup.
func WithRemove(fn func(string) error) Option {
	return func(m *Manager) { m.remove = fn }
}

// WithSyncDir overrides the directory fsync that follows a new backup.
func WithSyncDir(fn func(string) error) Option {
	return func(m *Manager) { m.syncDir = fn }
}

// NewManager returns a Manager for target storing backups in dir.
func NewManager(target, dir string, opts ...Option) *Manager {
	base := filepath.Base(target)
	m := &Manager{
		target:  target,
		dir:     dir,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `\.backup\.(\d{8}T\d{6}Z)(?:\.(\d+))?$`),
		now:     time.Now,
		remove:  os.Remove,
		syncDir: storage.SyncDir,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Target returns the file being backed up.
func (m *Manager) Target() string { return m.target }

// Create copies the target's bytes unchanged into a new backup file and
// fsyncs it before returning. A missing target yields apperr.ErrSourceMissing.
func (m *Manager) Create() (models.BackupRecord, error) {
	data, err := os.ReadFile(m.target)
	if err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: read %s: %w", m.target, storage.Classify(err))
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return models.BackupRecord{}, fmt.Errorf("backup: mkdir %s: %w", m.dir, storage.Classify(err))
	}

	perm := os.FileMode(0o600)
	if info, err := os.Stat(m.target); err == nil {
		perm = info.Mode().Perm()
	}

	ts := m.now().UTC().Truncate(time.Second)
	stem := filepath.Base(m.target) + ".backup." + ts.Format(TimeLayout)

	var f *os.File
	var path string
	for seq := 0; ; seq++ {
		name := stem
		if seq > 0 {
			name += "." + strconv.Itoa(seq)
		}
		path = filepath.Join(m.dir, name)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return models.BackupRecord{}, fmt.Errorf("backup: create %s: %w", path, storage.Classify(err))
		}
	}

	if err := writeAndSync(f, data); err != nil {
		_ = os.Remove(path)
		return models.BackupRecord{}, fmt.Errorf("backup: write %s: %w", path, storage.Classify(err))
	}
	// The backup file itself is fsynced; only its directory entry is at risk.
	if err := m.syncDir(m.dir); err != nil {
		m.logger.Warn("backup: dir sync failed",
			slog.String("dir", m.dir),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	hash, _ := checksum.ContentOrRaw(data)
	return models.BackupRecord{
		Path:         path,
		OriginalHash: hash,
		Size:         int64(len(data)),
		CreatedAt:    ts,
	}, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type entry struct {
	rec models.BackupRecord
	seq int
}

// List returns the backups of this target, newest first. Unrelated files and
// a missing directory are ignored.
func (m *Manager) List() ([]models.BackupRecord, error) {
	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: list %s: %w", m.dir, storage.Classify(err))
	}

	var entries []entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		ts, seq, ok := m.parse(d.Name())
		if !ok {
			continue
		}
		rec := models.BackupRecord{Path: filepath.Join(m.dir, d.Name()), CreatedAt: ts}
		if info, err := d.Info(); err == nil {
			rec.Size = info.Size()
		}
		entries = append(entries, entry{rec: rec, seq: seq})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]models.BackupRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

func (m *Manager) parse(name string) (time.Time, int, bool) {
	match := m.pattern.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, 0, false
	}
	ts, err := time.Parse(TimeLayout, match[1])
	if err != nil {
		return time.Time{}, 0, false
	}
	seq := 0
	if match[2] != "" {
		if seq, err = strconv.Atoi(match[2]); err != nil {
			return time.Time{}, 0, false
		}
	}
	return ts, seq, true
}

// CleanupResult reports what a retention pass did.
type CleanupResult struct {
	Removed  []string
	Failures []error
}

// Count returns the number of backups actually removed.
func (r CleanupResult) Count() int { return len(r.Removed) }

// Cleanup deletes all but the keep newest backups. A file that cannot be
// removed is logged and skipped.
func (m *Manager) Cleanup(keep int) (CleanupResult, error) {
	if keep < 0 {
		keep = 0
	}
	all, err := m.List()
	if err != nil {
		return CleanupResult{}, err
	}
	var res CleanupResult
	if len(all) <= keep {
		return res, nil
	}
	for _, rec := range all[keep:] {
		if err := m.remove(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("backup: remove failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()))
			res.Failures = append(res.Failures, fmt.Errorf("backup: remove %s: %w", rec.Path, err))
			continue
		}
		m.logger.Debug("backup: removed", slog.String("path", rec.Path))
		res.Removed = append(res.Removed, rec.Path)
	}
	if len(res.Removed) > 0 {
		m.logger.Info("backup: cleanup", slog.Int("removed", len(res.Removed)), slog.Int("kept", keep))
	}
	return res, nil
}

// Read returns the bytes of a backup owned by this manager. Paths outside the
// backup directory or not matching the naming pattern are rejected.
func (m *Manager) Read(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("backup: resolve %s: %w", path, err)
	}
	dir, err := filepath.Abs(m.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: resolve %s: %w", m.dir, err)
	}
	if filepath.Dir(abs) != dir {
		return nil, fmt.Errorf("backup: %s is outside %s: %w", path, m.dir, apperr.ErrInvalidInput)
	}
	if _, _, ok := m.parse(filepath.Base(abs)); !ok {
		return nil, fmt.Errorf("backup: %s is not a backup of %s: %w", path, filepath.Base(m.target), apperr.ErrInvalidInput)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("backup: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("backup: read %s: %w", path, storage.Classify(err))
	}
	return data, nil
}
