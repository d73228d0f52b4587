package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/models"
)

const (
	contentA = `{"env":{"ANTHROPIC_BASE_URL":"https://a.example","ANTHROPIC_AUTH_TOKEN":"sk-ant-abcdefghijkl"},"model":"opus"}`
	contentB = `{"model":"sonnet"}`
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cfgswap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(s string) *string { return &s }

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfgswap.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	p, err := s.Create(ctx, "  work  ", contentA)
	require.NoError(t, err)
	assert.Equal(t, "work", p.Name)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.IsActive)
	assert.Equal(t, "https://a.example", p.Fields.DisplayURL)
	assert.Equal(t, "sk-ant-a...ijkl", p.Fields.MaskedSecret)
	assert.Equal(t, "opus", p.Fields.Model)

	want, err := checksum.Content([]byte(contentA))
	require.NoError(t, err)
	assert.Equal(t, want, p.ContentHash)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, contentA, got.Content, "content is stored as given")
	assert.Equal(t, p.Fields, got.Fields)

	byName, err := s.GetByName(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)
}

func TestCreateRejects(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	_, err := s.Create(ctx, "taken", contentB)
	require.NoError(t, err)

	tests := []struct {
		name    string
		pname   string
		content string
		want    error
	}{
		{"duplicate", "taken", contentB, apperr.ErrDuplicateName},
		{"empty name", "   ", contentB, apperr.ErrInvalidName},
		{"slash", "a/b", contentB, apperr.ErrInvalidName},
		{"backslash", `a\b`, contentB, apperr.ErrInvalidName},
		{"dotdot", "a..b", contentB, apperr.ErrInvalidName},
		{"control", "a\tb", contentB, apperr.ErrInvalidName},
		{"nul", "a\x00b", contentB, apperr.ErrInvalidName},
		{"too long", strings.Repeat("x", MaxNameLength+1), contentB, apperr.ErrInvalidName},
		{"malformed", "fresh", `{"model":`, apperr.ErrMalformedContent},
		{"empty content", "fresh", ``, apperr.ErrMalformedContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.pname, tt.content)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNameLengthBoundary(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	_, err := s.Create(ctx, strings.Repeat("é", MaxNameLength), contentB)
	assert.NoError(t, err, "limit counts runes, not bytes")
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveByIDOrName(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, err := s.Create(ctx, "home", contentB)
	require.NoError(t, err)

	byID, err := s.Resolve(ctx, p.ID)
	require.NoError(t, err)
	byName, err := s.Resolve(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byName.ID)
}

func TestListAlphabetical(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Create(ctx, n, contentB)
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := Open(filepath.Join(t.TempDir(), "db.sqlite"), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Create(ctx, "p", contentA)
	require.NoError(t, err)
	require.NoError(t, s.MarkActive(ctx, p.ID))

	clock = clock.Add(time.Hour)
	renamed, err := s.Update(ctx, p.ID, UpdateParams{Name: ptr("q")})
	require.NoError(t, err)
	assert.Equal(t, "q", renamed.Name)
	assert.Equal(t, p.ContentHash, renamed.ContentHash)
	assert.True(t, renamed.IsActive, "update preserves the active flag")
	assert.True(t, renamed.UpdatedAt.After(p.UpdatedAt))

	changed, err := s.Update(ctx, p.ID, UpdateParams{Content: ptr(contentB)})
	require.NoError(t, err)
	wantHash, _ := checksum.Content([]byte(contentB))
	assert.Equal(t, wantHash, changed.ContentHash)
	assert.Equal(t, "sonnet", changed.Fields.Model)

	_, err = s.Update(ctx, p.ID, UpdateParams{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = s.Update(ctx, "nope", UpdateParams{Name: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Update(ctx, p.ID, UpdateParams{Content: ptr("{")})
	assert.ErrorIs(t, err, apperr.ErrMalformedContent)

	_, err = s.Create(ctx, "other", contentB)
	require.NoError(t, err)
	_, err = s.Update(ctx, p.ID, UpdateParams{Name: ptr("other")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	a, err := s.Create(ctx, "a", contentA)
	require.NoError(t, err)
	b, err := s.Create(ctx, "b", contentB)
	require.NoError(t, err)
	require.NoError(t, s.MarkActive(ctx, a.ID))

	_, err = s.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrCannotDeleteActive)

	ok, err := s.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	src, err := s.Create(ctx, "src", contentA)
	require.NoError(t, err)

	cp, err := s.Duplicate(ctx, src.ID, "copy")
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, src.ContentHash, cp.ContentHash)

	_, err = s.Duplicate(ctx, src.ID, "copy")
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)
	_, err = s.Duplicate(ctx, "missing", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	_, err := s.Create(ctx, "Work", contentA)
	require.NoError(t, err)
	_, err = s.Create(ctx, "home", contentB)
	require.NoError(t, err)
	_, err = s.Create(ctx, "100%", contentB)
	require.NoError(t, err)

	hits, err := s.Search(ctx, "work")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Work", hits[0].Name)

	hits, err = s.Search(ctx, "SONNET")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search(ctx, "%")
	require.NoError(t, err)
	require.Len(t, hits, 1, "wildcards are matched literally")
	assert.Equal(t, "100%", hits[0].Name)
}

func TestSearchMatchesDecodedContent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	_, err := s.Create(ctx, "escaped", `{"model":"caf\u00e9","env":{"TIMEOUT":30000}}`)
	require.NoError(t, err)
	_, err = s.Create(ctx, "plain", contentB)
	require.NoError(t, err)

	for _, q := range []string{":", `"`, "{", "u00e9", `model":"`} {
		hits, err := s.Search(ctx, q)
		require.NoError(t, err)
		assert.Empty(t, hits, "query %q matches JSON syntax", q)
	}

	hits, err := s.Search(ctx, "CAFÉ")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "escaped", hits[0].Name)

	hits, err = s.Search(ctx, "timeout")
	require.NoError(t, err)
	require.Len(t, hits, 1, "keys are searchable")

	hits, err = s.Search(ctx, "3000")
	require.NoError(t, err)
	require.Len(t, hits, 1, "numbers are searchable")

	hits, err = s.Search(ctx, "model")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMarkActiveSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	a, err := s.Create(ctx, "a", contentA)
	require.NoError(t, err)
	b, err := s.Create(ctx, "b", contentB)
	require.NoError(t, err)

	require.NoError(t, s.MarkActive(ctx, a.ID))
	require.NoError(t, s.MarkActive(ctx, b.ID))

	hashes, err := s.Hashes(ctx)
	require.NoError(t, err)
	active := 0
	for _, h := range hashes {
		if h.IsActive {
			active++
			assert.Equal(t, b.ID, h.ID)
		}
	}
	assert.Equal(t, 1, active)

	got, err := s.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	assert.ErrorIs(t, s.MarkActive(ctx, "missing"), apperr.ErrNotFound)

	require.NoError(t, s.ClearActive(ctx))
	got, err = s.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkActiveConcurrent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	var ids []string
	for i := range 5 {
		p, err := s.Create(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf(`{"n":%d}`, i))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error { return s.MarkActive(ctx, id) })
	}
	require.NoError(t, g.Wait())

	hashes, err := s.Hashes(ctx)
	require.NoError(t, err)
	active := 0
	for _, h := range hashes {
		if h.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestBackupLog(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, err := s.Create(ctx, "p", contentB)
	require.NoError(t, err)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.LogBackup(ctx, models.BackupRecord{Path: "/b/1", OriginalHash: "h1", CreatedAt: t0}))
	require.NoError(t, s.LogBackup(ctx, models.BackupRecord{Path: "/b/2", OriginalHash: "h2", CreatedAt: t0.Add(time.Second), AppliedProfileID: &p.ID}))
	require.NoError(t, s.LogBackup(ctx, models.BackupRecord{Path: "/b/2", OriginalHash: "ignored"}))

	recs, err := s.BackupRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "/b/2", recs[0].Path)
	assert.Equal(t, "h2", recs[0].OriginalHash)
	require.NotNil(t, recs[0].AppliedProfileID)
	assert.Equal(t, p.ID, *recs[0].AppliedProfileID)
	assert.Nil(t, recs[1].AppliedProfileID)

	ok, err := s.Delete(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	recs, err = s.BackupRecords(ctx)
	require.NoError(t, err)
	assert.Nil(t, recs[0].AppliedProfileID, "profile reference is cleared on delete")

	require.NoError(t, s.DeleteBackupRecord(ctx, "/b/1"))
	recs, err = s.BackupRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for i, outcome := range []string{models.OutcomeApplied, models.OutcomeFailed, models.OutcomeRestored} {
		id, err := s.RecordAudit(ctx, models.AuditEntry{
			ProfileID: fmt.Sprintf("p%d", i),
			Outcome:   outcome,
			Step:      "Done",
		})
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	entries, err := s.AuditEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OutcomeRestored, entries[0].Outcome)
	assert.Equal(t, models.OutcomeFailed, entries[1].Outcome)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestErrorsAreDistinct(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	_, err := s.Create(ctx, "a/b", `{`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidName))
	assert.False(t, errors.Is(err, apperr.ErrMalformedContent), "name is checked first")
}
