package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/canonical"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/models"
)

const profileColumns = `id, name, content, content_hash, is_active, created_at, updated_at`

// UpdateParams holds the fields an Update may change. Nil means unchanged.
type UpdateParams struct {
	Name    *string
	Content *string
}

// ProfileHash is the projection the detector scans.
type ProfileHash struct {
	ID       string
	Name     string
	Hash     string
	IsActive bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Name, &p.Content, &p.ContentHash, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Profile{}, err
	}
	p.Fields = models.ExtractFields(p.Content)
	return p, nil
}

// Create inserts a new profile. The content must be a well-formed document.
func (s *Store) Create(ctx context.Context, name, content string) (models.Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return models.Profile{}, err
	}
	hash, err := checksum.Content([]byte(content))
	if err != nil {
		return models.Profile{}, fmt.Errorf("store: content: %w", err)
	}

	now := s.timestamp()
	p := models.Profile{
		ID:          s.newID(),
		Name:        name,
		Content:     content,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	const query = `INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, 0, ?, ?)`
	if _, err := s.conn.ExecContext(ctx, query, p.ID, p.Name, p.Content, p.ContentHash, p.CreatedAt, p.UpdatedAt); err != nil {
		return models.Profile{}, fmt.Errorf("store: create: %w", mapConstraint(name, err))
	}
	p.Fields = models.ExtractFields(content)
	return p, nil
}

// Get returns the profile with the given id.
func (s *Store) Get(ctx context.Context, id string) (models.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	p, err := scanProfile(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("store: profile %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("store: get: %w", err)
	}
	return p, nil
}

// GetByName returns the profile with the given (trimmed) name.
func (s *Store) GetByName(ctx context.Context, name string) (models.Profile, error) {
	name = strings.TrimSpace(name)
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE name = ?`
	p, err := scanProfile(s.conn.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("store: profile %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("store: get by name: %w", err)
	}
	return p, nil
}

// Resolve looks a profile up by id first, then by name.
func (s *Store) Resolve(ctx context.Context, idOrName string) (models.Profile, error) {
	p, err := s.Get(ctx, idOrName)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return p, err
	}
	return s.GetByName(ctx, idOrName)
}

// List returns all profiles ordered by name.
func (s *Store) List(ctx context.Context) ([]models.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles ORDER BY name`
	return s.queryProfiles(ctx, query)
}

// Search returns profiles whose name, or any key or scalar value of the
// decoded content, contains query. Matching folds Unicode case; JSON syntax
// and escape sequences in the stored text never match.
func (s *Store) Search(ctx context.Context, query string) ([]models.Profile, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []models.Profile
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), needle) || contentContains(p.Content, needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func contentContains(content, needle string) bool {
	doc, err := canonical.Parse([]byte(content))
	if err != nil {
		return strings.Contains(strings.ToLower(content), needle)
	}
	return valueContains(doc, needle)
}

func valueContains(v any, needle string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if strings.Contains(strings.ToLower(k), needle) || valueContains(child, needle) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if valueContains(child, needle) {
				return true
			}
		}
	case string:
		return strings.Contains(strings.ToLower(t), needle)
	case json.Number:
		return strings.Contains(t.String(), needle)
	case bool:
		return strings.Contains(strconv.FormatBool(t), needle)
	}
	return false
}

func (s *Store) queryProfiles(ctx context.Context, query string, args ...any) ([]models.Profile, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored profiles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Update changes the name and/or content of a profile. The content hash is
// recomputed only when content changes; the active flag is preserved.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (models.Profile, error) {
	if params.Name == nil && params.Content == nil {
		return models.Profile{}, fmt.Errorf("store: update: nothing to change: %w", apperr.ErrInvalidInput)
	}

	var name, hash string
	if params.Name != nil {
		n, err := NormalizeName(*params.Name)
		if err != nil {
			return models.Profile{}, err
		}
		name = n
	}
	if params.Content != nil {
		h, err := checksum.Content([]byte(*params.Content))
		if err != nil {
			return models.Profile{}, fmt.Errorf("store: content: %w", err)
		}
		hash = h
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Profile{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	const sel = `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	p, err := scanProfile(tx.QueryRowContext(ctx, sel, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("store: profile %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("store: update: %w", err)
	}

	if params.Name != nil {
		p.Name = name
	}
	if params.Content != nil {
		p.Content = *params.Content
		p.ContentHash = hash
	}
	p.UpdatedAt = s.timestamp()

	const upd = `UPDATE profiles SET name = ?, content = ?, content_hash = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, p.Name, p.Content, p.ContentHash, p.UpdatedAt, id); err != nil {
		return models.Profile{}, fmt.Errorf("store: update: %w", mapConstraint(p.Name, err))
	}
	if err := tx.Commit(); err != nil {
		return models.Profile{}, fmt.Errorf("store: commit: %w", err)
	}
	p.Fields = models.ExtractFields(p.Content)
	return p, nil
}

// Delete removes a profile. It reports false when no such profile exists and
// refuses to delete the profile currently flagged active.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM profiles WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: delete: %w", err)
	}
	if active {
		return false, fmt.Errorf("store: profile %q: %w", id, apperr.ErrCannotDeleteActive)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit: %w", err)
	}
	return true, nil
}

// Duplicate copies a profile's content under a new name.
func (s *Store) Duplicate(ctx context.Context, id, newName string) (models.Profile, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return models.Profile{}, err
	}
	return s.Create(ctx, newName, src.Content)
}

// Active returns the flagged active profile, or nil when none is flagged.
func (s *Store) Active(ctx context.Context) (*models.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE is_active = 1`
	p, err := scanProfile(s.conn.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active: %w", err)
	}
	return &p, nil
}

// Hashes returns the id, name, hash, and flag of every profile, ordered by name.
func (s *Store) Hashes(ctx context.Context) ([]ProfileHash, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, content_hash, is_active FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: hashes: %w", err)
	}
	defer rows.Close()

	var out []ProfileHash
	for rows.Next() {
		var h ProfileHash
		if err := rows.Scan(&h.ID, &h.Name, &h.Hash, &h.IsActive); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// MarkActive flags id as the single active profile, clearing every other flag
// in the same transaction.
func (s *Store) MarkActive(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 0 WHERE is_active = 1 AND id <> ?`, id); err != nil {
		return fmt.Errorf("store: clear active: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark active: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("store: profile %q: %w", id, apperr.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ClearActive removes the active flag from every profile.
func (s *Store) ClearActive(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE profiles SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("store: clear active: %w", err)
	}
	return nil
}
