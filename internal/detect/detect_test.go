package detect

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/cfgswap/internal/storage"
	"github.com/starford/cfgswap/internal/store"
)

type env struct {
	target string
	st     *store.Store
	det    *Detector
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "cfgswap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	target := filepath.Join(root, "claude", "settings.json")
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return &env{
		target: target,
		st:     st,
		det:    New(target, st, storage.NewFS(), logger),
	}
}

func (e *env) writeTarget(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(e.target), 0o755))
	require.NoError(t, os.WriteFile(e.target, []byte(content), 0o600))
}

func (e *env) activeID(t *testing.T) string {
	t.Helper()
	p, err := e.st.Active(context.Background())
	require.NoError(t, err)
	if p == nil {
		return ""
	}
	return p.ID
}

func TestReconcileMatchesReformattedContent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.st.Create(ctx, "p", `{"a":1,"b":2}`)
	require.NoError(t, err)

	e.writeTarget(t, "{\n  \"b\": 2,\n  \"a\": 1\n}\n")

	id, err := e.det.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
	assert.Equal(t, p.ID, e.activeID(t))
}

func TestReconcileNoMatchClears(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.st.Create(ctx, "p", `{"a":1}`)
	require.NoError(t, err)
	require.NoError(t, e.st.MarkActive(ctx, p.ID))

	e.writeTarget(t, `{"a":2}`)

	id, err := e.det.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, e.activeID(t))
}

func TestReconcileMissingOrMalformedTargetClears(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.st.Create(ctx, "p", `{"a":1}`)
	require.NoError(t, err)

	require.NoError(t, e.st.MarkActive(ctx, p.ID))
	id, err := e.det.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, id, "missing target")
	assert.Empty(t, e.activeID(t))

	require.NoError(t, e.st.MarkActive(ctx, p.ID))
	e.writeTarget(t, `{"a":`)
	id, err = e.det.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, id, "malformed target")
	assert.Empty(t, e.activeID(t))
}

func TestReconcileDuplicateHashWinner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const same = `{"model":"x"}`
	zed, err := e.st.Create(ctx, "zed", same)
	require.NoError(t, err)
	alpha, err := e.st.Create(ctx, "alpha", same)
	require.NoError(t, err)
	e.writeTarget(t, same)

	id, err := e.det.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, alpha.ID, id, "alphabetically first wins without a preference")

	id, err = e.det.Reconcile(ctx, zed.ID)
	require.NoError(t, err)
	assert.Equal(t, zed.ID, id, "preferred profile wins")

	id, err = e.det.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, zed.ID, id, "currently flagged profile is kept")

	id, err = e.det.Reconcile(ctx, "unrelated")
	require.NoError(t, err)
	assert.Equal(t, zed.ID, id, "a non-matching preference is ignored")

	hashes, err := e.st.Hashes(ctx)
	require.NoError(t, err)
	flagged := 0
	for _, h := range hashes {
		if h.IsActive {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestPick(t *testing.T) {
	hashes := []store.ProfileHash{
		{ID: "1", Name: "a", Hash: "h1"},
		{ID: "2", Name: "b", Hash: "h2", IsActive: true},
		{ID: "3", Name: "c", Hash: "h1"},
	}
	tests := []struct {
		name    string
		hash    string
		prefer  string
		want    string
		flagged int
	}{
		{"first by name", "h1", "", "1", 1},
		{"prefer", "h1", "3", "3", 1},
		{"flagged match", "h2", "", "2", 1},
		{"no match", "h9", "", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flagged := pick(hashes, tt.hash, tt.prefer)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.flagged, flagged)
		})
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatchReconcilesOnExternalEdit(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := e.st.Create(ctx, "a", `{"p":"a"}`)
	require.NoError(t, err)
	b, err := e.st.Create(ctx, "b", `{"p":"b"}`)
	require.NoError(t, err)
	e.writeTarget(t, `{"p":"a"}`)

	var mu sync.Mutex
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- e.det.Watch(ctx, 50*time.Millisecond, func(id string) {
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
		})
	}()
	time.Sleep(100 * time.Millisecond)

	e.writeTarget(t, `{"p":"b"}`)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == b.ID
	}, "watcher did not flag b after external edit")

	require.NoError(t, os.Remove(e.target))
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == ""
	}, "watcher did not clear after removal")
	assert.NotEqual(t, a.ID, e.activeID(t))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchIgnoresSiblings(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.writeTarget(t, `{}`)

	var mu sync.Mutex
	calls := 0
	go func() {
		_ = e.det.Watch(ctx, 30*time.Millisecond, func(string) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(e.target), "other.json"), []byte(`{}`), 0o600))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}
