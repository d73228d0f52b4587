package internal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/cfgswap/internal/backup"
	"github.com/starford/cfgswap/internal/detect"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/metrics"
	"github.com/starford/cfgswap/internal/profileservice"
	"github.com/starford/cfgswap/internal/storage"
	"github.com/starford/cfgswap/internal/store"
)

// App is the wired component graph for one target file.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	Store    *store.Store
	Detector *detect.Detector
	Metrics  *metrics.Metrics
	Service  *profileservice.Service

	version string
}

// Open builds every component from the configuration. Close releases the
// database.
func Open(opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	cfg := a.config

	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	files := storage.NewFS()
	backups := backup.NewManager(cfg.Target.Path, cfg.Target.Backups(), backup.WithLogger(a.logger))
	det := detect.New(cfg.Target.Path, st, files, a.logger)
	m := metrics.New()

	engOpts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMetrics(m),
		engine.WithLockOptions(cfg.Apply.LockOptions()),
		engine.WithTimeout(cfg.Apply.Timeout),
		engine.WithRetention(cfg.Target.Retention),
	}
	if a.notifier != nil {
		engOpts = append(engOpts, engine.WithNotifier(a.notifier))
	}
	eng := engine.New(st, files, backups, det, engOpts...)

	return &App{
		Config:   cfg,
		Logger:   a.logger,
		Store:    st,
		Detector: det,
		Metrics:  m,
		Service:  profileservice.New(st, eng, a.notifier, a.logger),
		version:  a.version,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewLogger returns the JSON logger used by every command. Servers log to
// stdout; one-shot commands pass stderr so stdout stays machine-readable.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
