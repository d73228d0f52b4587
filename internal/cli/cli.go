// Package cli implements the cfgswap command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/starford/cfgswap/internal"
	"github.com/starford/cfgswap/internal/apperr"
	pkgconfig "github.com/starford/cfgswap/pkg/config"
)

// Exit codes.
const (
	ExitOK               = 0
	ExitGeneral          = 1
	ExitInvalidArguments = 2
	ExitNotFound         = 3
	ExitPermissionDenied = 4
	ExitInvalidConfig    = 5
	ExitDatabase         = 6
)

var (
	errUsage    = errors.New("invalid arguments")
	errConfig   = errors.New("invalid configuration")
	errDatabase = errors.New("database error")
)

// ExitCode maps err onto the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errConfig), errors.Is(err, apperr.ErrMalformedContent):
		return ExitInvalidConfig
	case errors.Is(err, errDatabase):
		return ExitDatabase
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrSourceMissing):
		return ExitNotFound
	case errors.Is(err, apperr.ErrPermissionDenied):
		return ExitPermissionDenied
	case errors.Is(err, errUsage),
		errors.Is(err, apperr.ErrInvalidName),
		errors.Is(err, apperr.ErrInvalidInput):
		return ExitInvalidArguments
	default:
		return ExitGeneral
	}
}

// Streams are the process streams a command reads and writes.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type runner struct {
	Streams
	version string
}

// NewCommand builds the root command.
func NewCommand(s Streams, version string) *cli.Command {
	r := &runner{Streams: s, version: version}

	return &cli.Command{
		Name:      "cfgswap",
		Usage:     "Switch the Claude settings file between named profiles",
		Version:   version,
		Writer:    s.Out,
		ErrWriter: s.Err,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (optional)",
				Value:   defaultConfigPath(),
				Sources: cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "target",
				Usage:   "Override the settings file path",
				Sources: cli.EnvVars("CFGSWAP_TARGET"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Override the profile database path",
				Sources: cli.EnvVars("CFGSWAP_DB"),
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, or yaml",
				Value:   formatText,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, or error",
			},
		},
		Commands: []*cli.Command{
			r.profileCommand(),
			r.backupCommand(),
			{
				Name:   "status",
				Usage:  "Show the settings file and the profile it matches",
				Action: r.withApp(r.status),
			},
			{
				Name:   "reconcile",
				Usage:  "Recompute the active profile from the settings file",
				Action: r.withApp(r.reconcile),
			},
			{
				Name:  "history",
				Usage: "Show recent apply and restore outcomes",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum entries"},
				},
				Action: r.withApp(r.history),
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, event stream, and settings watcher",
				Action: r.serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: r.mcp,
			},
		},
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cfgswap", "config.yaml")
}

// loadConfig reads the optional config file and applies flag overrides.
func (r *runner) loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(internal.ExpandHome(cmd.String("config")), cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if v := cmd.String("target"); v != "" {
		cfg.Target.Path = v
	}
	if v := cmd.String("db"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := cmd.String("log-level"); v != "" {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("%w: log level %q", errUsage, v)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// commandLogger logs to stderr. One-shot commands stay quiet below warn
// unless a level was asked for.
func (r *runner) commandLogger(cmd *cli.Command, cfg *internal.Config) *slog.Logger {
	level := cfg.App.LogLevel
	if cmd.String("log-level") == "" && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return internal.NewLogger(r.Err, level)
}

type appAction func(ctx context.Context, cmd *cli.Command, app *internal.App, p *printer) error

// withApp opens the component graph around a one-shot command.
func (r *runner) withApp(fn appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		p, err := newPrinter(r.Out, cmd.String("format"))
		if err != nil {
			return err
		}
		cfg, err := r.loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := internal.Open(
			internal.WithConfig(cfg),
			internal.WithLogger(r.commandLogger(cmd, cfg)),
		)
		if err != nil {
			return fmt.Errorf("%w: %w", errDatabase, err)
		}
		defer app.Close()
		return fn(ctx, cmd, app, p)
	}
}

func (r *runner) serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(r.version))
}

func (r *runner) mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(r.commandLogger(cmd, cfg)),
		internal.WithVersion(r.version),
	)
}

// arg returns the i-th positional argument or a usage error naming it.
func arg(cmd *cli.Command, i int, name string) (string, error) {
	v := cmd.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("%w: missing <%s>", errUsage, name)
	}
	return v, nil
}
