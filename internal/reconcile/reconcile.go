// Package reconcile copies markdown memory files into the SQLite store.
//
// The direction is one way and additive: entries found in markdown are
// inserted into SQLite once, keyed by a chunk id recorded in the store's
// sync ledger. Edits or deletions on either side are not propagated.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// Source lists the entries to copy. mdstore.Store satisfies it.
type Source interface {
	All() ([]store.Entry, error)
}

// Target records chunks. store.Store satisfies it.
type Target interface {
	SyncChunks(chunks []store.Chunk) (*store.SyncResult, error)
}

// ChunkID identifies a markdown entry across runs. The created_at stamp
// is part of the key so that a markdown store rebuilt from scratch, which
// reuses low ids, does not collide with entries synced earlier.
func ChunkID(e store.Entry) string {
	h := sha256.New()
	fmt.Fprint(h, strings.Join([]string{
		string(e.Scope),
		e.ProjectName(),
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt,
	}, "|"))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Sync copies every entry of src that dst has not seen yet.
func Sync(src Source, dst Target) (*store.SyncResult, error) {
	entries, err := src.All()
	if err != nil {
		return nil, fmt.Errorf("read markdown entries: %w", err)
	}

	chunks := make([]store.Chunk, 0, len(entries))
	for _, e := range entries {
		chunks = append(chunks, store.Chunk{ID: ChunkID(e), Entry: e})
	}

	result, err := dst.SyncChunks(chunks)
	if err != nil {
		return nil, err
	}
	logger.ForComponent("reconcile").Info("markdown sync finished", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}
