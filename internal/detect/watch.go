package detect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last target event
// before reconciling.
const DefaultDebounce = 200 * time.Millisecond

// ChangeCallback receives the active profile id ("" for none) after a
// watcher-driven reconcile.
type ChangeCallback func(activeID string)

// Watch reconciles whenever the target file is created, written, renamed, or
// removed by anyone, until ctx is cancelled. The target's directory is
// watched rather than the file so atomic replacements are seen.
func (d *Detector) Watch(ctx context.Context, debounce time.Duration, cb ChangeCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir := filepath.Dir(d.target)
	base := filepath.Base(d.target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("detect: watch dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("detect: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("detect: watch %s: %w", dir, err)
	}
	d.logger.Info("watcher: started", slog.String("target", d.target))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			d.logger.Info("watcher: stopped")
			return nil

		case <-fire:
			id, err := d.Reconcile(ctx, "")
			if err != nil {
				d.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			d.logger.Debug("watcher: reconciled", slog.String("active", id))
			if cb != nil {
				cb(id)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
