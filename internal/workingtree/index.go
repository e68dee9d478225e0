// Package workingtree implements the staging area and the operations that
// move files between the filesystem, the index, and the committed history:
// Add, Status, Commit, and differential Checkout (spec §4.6).
package workingtree

import (
	"time"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// IndexEntry records what the index believes a tracked path's stored
// content is, plus the filesystem stat fields Status uses to short-circuit
// re-hashing unchanged files.
type IndexEntry struct {
	Oid   oid.Oid   `cbor:"oid"`
	Size  int64     `cbor:"size"`
	Mtime time.Time `cbor:"mtime"`
	Mode  uint32    `cbor:"mode"`
}

// Index is the staging area: path -> IndexEntry, for every tracked file.
// Paths are slash-separated and relative to the working tree root.
type Index struct {
	Entries map[string]IndexEntry `cbor:"entries"`
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{Entries: make(map[string]IndexEntry)}
}

// Set records or updates path's entry.
func (idx *Index) Set(path string, e IndexEntry) {
	if idx.Entries == nil {
		idx.Entries = make(map[string]IndexEntry)
	}
	idx.Entries[path] = e
}

// Get returns path's entry, if tracked.
func (idx *Index) Get(path string) (IndexEntry, bool) {
	e, ok := idx.Entries[path]
	return e, ok
}

// Remove untracks path.
func (idx *Index) Remove(path string) {
	delete(idx.Entries, path)
}

// Paths returns every tracked path.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.Entries))
	for p := range idx.Entries {
		paths = append(paths, p)
	}
	return paths
}
