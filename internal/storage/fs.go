package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/canonical"
)

const defaultPerm fs.FileMode = 0o600

// FS implements Provider backed by the local file system.
type FS struct {
	rename func(oldpath, newpath string) error
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithRename overrides the final rename step. Tests use it to simulate a
// failure at the only step that touches the target.
func WithRename(fn func(oldpath, newpath string) error) FSOption {
	return func(f *FS) {
		f.rename = fn
	}
}

// NewFS creates a new FS provider.
func NewFS(opts ...FSOption) *FS {
	f := &FS{rename: os.Rename}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Read returns the raw bytes of the file at path.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, Classify(err))
	}
	return data, nil
}

// WriteAtomic validates content, then writes it: tmp file → fsync → rename → dir fsync.
// The temp file lives next to the target so the rename stays on one file system.
func (f *FS) WriteAtomic(path string, content []byte) error {
	if err := canonical.Valid(content); err != nil {
		return fmt.Errorf("storage: validate %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("storage: resolve %s: %w", path, errors.Join(apperr.ErrIO, err))
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, Classify(err))
	}

	perm := defaultPerm
	if info, err := os.Stat(abs); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", Classify(err))
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", Classify(err))
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", Classify(err))
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", Classify(err))
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", Classify(err))
	}
	if err := f.rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename onto %s: %w", abs, Classify(err))
	}
	success = true

	// The rename is already visible; a failed directory sync only weakens
	// durability across power loss.
	_ = SyncDir(dir)
	return nil
}

// SyncDir flushes directory metadata (new names, renames) to disk.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Classify attaches the matching apperr sentinel to an OS error.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return errors.Join(apperr.ErrSourceMissing, err)
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(apperr.ErrPermissionDenied, err)
	default:
		return errors.Join(apperr.ErrIO, err)
	}
}
