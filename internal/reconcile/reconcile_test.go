package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wty0512/memory-mcp-server/internal/mdstore"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

func newStores(t *testing.T) (*mdstore.Store, *store.Store) {
	t.Helper()
	md, err := mdstore.New(filepath.Join(t.TempDir(), "markdown"), mdstore.Options{})
	require.NoError(t, err)

	cfg := store.DefaultConfig()
	cfg.DataDir = t.TempDir()
	db, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return md, db
}

func TestSyncIsAdditiveAndIdempotent(t *testing.T) {
	md, db := newStores(t)
	_, err := md.Create(store.CreateParams{Project: "p", Title: "one", Body: "first markdown note"})
	require.NoError(t, err)
	_, err = md.Create(store.CreateParams{Scope: store.ScopeGlobal, Body: "a global note"})
	require.NoError(t, err)

	res, err := Sync(md, db)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Skipped)

	res, err = Sync(md, db)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 2, res.Skipped)

	_, err = md.Create(store.CreateParams{Project: "p", Body: "later note"})
	require.NoError(t, err)
	res, err = Sync(md, db)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	entries, err := db.List(store.ListOptions{Project: "p"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	hits, err := db.Search("markdown", store.SearchOptions{Project: "p"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "one", hits[0].Title)

	synced, err := db.SyncedChunks()
	require.NoError(t, err)
	assert.Len(t, synced, 3)
}

func TestChunkIDDependsOnIdentityFields(t *testing.T) {
	p := "p"
	a := store.Entry{ID: 1, Scope: store.ScopeProject, Project: &p, CreatedAt: "2024-01-01 00:00:00.000000", Body: "x"}
	b := a
	b.Body = "edited"
	assert.Equal(t, ChunkID(a), ChunkID(b))

	c := a
	c.CreatedAt = "2024-01-02 00:00:00.000000"
	assert.NotEqual(t, ChunkID(a), ChunkID(c))
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	var flushes atomic.Int32
	got := make(chan []string, 4)
	d := NewDebouncer(20*time.Millisecond, func(paths []string) {
		flushes.Add(1)
		got <- paths
	})
	defer d.Stop()

	d.Add("a.md")
	d.Add("b.md")
	d.Add("a.md")

	select {
	case paths := <-got:
		assert.ElementsMatch(t, []string{"a.md", "b.md"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), flushes.Load())
}

func TestWatchFiresOnMarkdownWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, WatchConfig{Dir: dir, Debounce: 20 * time.Millisecond}, func(paths []string) {
			fired <- paths
		})
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "p.md"), []byte("# AI Memory for p\n"), 0644))
		select {
		case paths := <-fired:
			for _, p := range paths {
				assert.Equal(t, "p.md", filepath.Base(p))
			}
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("watch never fired")
		}
	}
}
