// Package testutil provides shared test helpers for wiring a full service
// against a temporary target file and database.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/cfgswap/internal/backup"
	"github.com/starford/cfgswap/internal/detect"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/profileservice"
	"github.com/starford/cfgswap/internal/storage"
	"github.com/starford/cfgswap/internal/store"
)

// Env is a wired service rooted in a temp directory.
type Env struct {
	Root    string
	Target  string
	Store   *store.Store
	Service *profileservice.Service
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewEnv builds a store, engine, and service whose target file lives under a
// fresh temp directory. The target does not exist until written.
func NewEnv(t *testing.T, notifier engine.Notifier) *Env {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(root, "cfgswap.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := Logger()
	target := filepath.Join(root, "claude", "settings.json")
	files := storage.NewFS()
	backups := backup.NewManager(target, filepath.Join(root, "claude", "backups"), backup.WithLogger(logger))
	det := detect.New(target, st, files, logger)

	opts := []engine.Option{engine.WithLogger(logger)}
	if notifier != nil {
		opts = append(opts, engine.WithNotifier(notifier))
	}
	eng := engine.New(st, files, backups, det, opts...)

	return &Env{
		Root:    root,
		Target:  target,
		Store:   st,
		Service: profileservice.New(st, eng, notifier, logger),
	}
}

// WriteTarget replaces the target file's bytes directly.
func (e *Env) WriteTarget(t *testing.T, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(e.Target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.Target, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// ReadTarget returns the target file's bytes.
func (e *Env) ReadTarget(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.Target)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
