// Package detect derives which stored profile matches the live target file.
//
// The is_active flag in the store is only a cache. The source of truth is
// hash equality between the target's canonical form and a profile's content.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/storage"
	"github.com/starford/cfgswap/internal/store"
)

// ProfileStore is the subset of the record store the detector needs.
type ProfileStore interface {
	Hashes(ctx context.Context) ([]store.ProfileHash, error)
	MarkActive(ctx context.Context, id string) error
	ClearActive(ctx context.Context) error
}

// Detector recomputes the active profile for one target file.
type Detector struct {
	target string
	store  ProfileStore
	files  storage.Provider
	logger *slog.Logger
}

// New returns a Detector for target.
func New(target string, st ProfileStore, files storage.Provider, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{target: target, store: st, files: files, logger: logger}
}

// Target returns the watched file path.
func (d *Detector) Target() string { return d.target }

// Reconcile hashes the target and flags the matching profile as active.
// When several profiles share the hash, prefer wins if it is among them,
// then the currently flagged profile, then the first by name. A missing or
// malformed target, or no match, clears every flag and returns "".
func (d *Detector) Reconcile(ctx context.Context, prefer string) (string, error) {
	data, err := d.files.Read(d.target)
	if err != nil {
		if errors.Is(err, apperr.ErrSourceMissing) {
			d.logger.Debug("detect: target missing", slog.String("path", d.target))
			return "", d.clear(ctx)
		}
		return "", fmt.Errorf("detect: read target: %w", err)
	}

	hash, err := checksum.Content(data)
	if err != nil {
		d.logger.Debug("detect: target malformed",
			slog.String("path", d.target),
			slog.String("error", err.Error()))
		return "", d.clear(ctx)
	}

	hashes, err := d.store.Hashes(ctx)
	if err != nil {
		return "", fmt.Errorf("detect: %w", err)
	}

	winner, flagged := pick(hashes, hash, prefer)
	if winner == "" {
		if flagged > 0 {
			return "", d.clear(ctx)
		}
		return "", nil
	}

	if flagged == 1 && isFlagged(hashes, winner) {
		return winner, nil
	}
	if err := d.store.MarkActive(ctx, winner); err != nil {
		return "", fmt.Errorf("detect: %w", err)
	}
	d.logger.Debug("detect: active profile", slog.String("id", winner))
	return winner, nil
}

// pick chooses the winning id among profiles whose hash matches target and
// counts the profiles currently flagged. hashes must be ordered by name.
func pick(hashes []store.ProfileHash, target, prefer string) (string, int) {
	var first, current string
	preferMatches := false
	flagged := 0
	for _, h := range hashes {
		if h.IsActive {
			flagged++
		}
		if h.Hash != target {
			continue
		}
		if first == "" {
			first = h.ID
		}
		if h.IsActive && current == "" {
			current = h.ID
		}
		if prefer != "" && h.ID == prefer {
			preferMatches = true
		}
	}
	switch {
	case preferMatches:
		return prefer, flagged
	case current != "":
		return current, flagged
	default:
		return first, flagged
	}
}

func isFlagged(hashes []store.ProfileHash, id string) bool {
	for _, h := range hashes {
		if h.ID == id {
			return h.IsActive
		}
	}
	return false
}

func (d *Detector) clear(ctx context.Context) error {
	if err := d.store.ClearActive(ctx); err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	return nil
}
