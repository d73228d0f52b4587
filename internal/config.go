package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cfgswap/internal/filelock"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Target TargetConfig      `yaml:"target"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Apply  ApplyConfig       `yaml:"apply"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Target.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Apply.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// TargetConfig locates the settings file that profiles are applied to.
// An empty BackupDir means "backups" next to the target.
type TargetConfig struct {
	Path      string `yaml:"path"`
	BackupDir string `yaml:"backup_dir"`
	Retention int    `yaml:"retention"`
}

// Validate validates the target configuration and expands a leading ~.
func (c *TargetConfig) Validate() error {
	c.Path = ExpandHome(c.Path)
	c.BackupDir = ExpandHome(c.BackupDir)
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Retention, validation.Required, validation.Min(1)),
	)
}

// Backups returns the backup directory.
func (c *TargetConfig) Backups() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.Path), "backups")
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	c.Path = ExpandHome(c.Path)
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ApplyConfig bounds a single apply or restore.
type ApplyConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	LockAttempts        int           `yaml:"lock_attempts"`
	LockInitialInterval time.Duration `yaml:"lock_initial_interval"`
}

// Validate validates the apply configuration.
func (c *ApplyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.LockAttempts, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&c.LockInitialInterval, validation.Required, validation.Min(time.Millisecond)),
	)
}

// LockOptions converts the apply settings into lock retry options.
func (c *ApplyConfig) LockOptions() filelock.Options {
	opts := filelock.DefaultOptions()
	opts.Attempts = c.LockAttempts
	opts.InitialInterval = c.LockInitialInterval
	return opts
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	lock := filelock.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Target: TargetConfig{
			Path:      filepath.Join(home, ".claude", "settings.json"),
			Retention: 10,
		},
		SQLite: SQLiteConfig{
			Path: filepath.Join(home, ".config", "cfgswap", "profiles.db"),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Apply: ApplyConfig{
			Timeout:             30 * time.Second,
			LockAttempts:        lock.Attempts,
			LockInitialInterval: lock.InitialInterval,
		},
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
