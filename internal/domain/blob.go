// Package domain contains the core versioned object model: the five object
// kinds (Blob, Tree, Commit, Chunk, Tag), their canonical CBOR encoding, and
// the reference-counted lifecycle bookkeeping the garbage collector walks.
package domain

import (
	"time"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// Kind identifies which of the five object kinds an Oid addresses.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
	KindChunk  Kind = "chunk"
	KindTag    Kind = "tag"
)

// Blob is a single stored asset: either literal content (addressed directly
// by its oid) or the original of a chunk manifest, tracked here so the
// garbage collector can reason about liveness without re-reading storage.
type Blob struct {
	Oid Oid `json:"oid"`

	// Size is the logical (uncompressed, undeltified) byte size.
	Size int64 `json:"size"`

	// Chunked is true when the blob's bytes are not stored directly under
	// its own oid but reassembled from a ChunkManifest.
	Chunked bool `json:"chunked"`

	// RefCount is the number of live tree entries/delta bases referencing
	// this blob. Reachability during GC is still recomputed by mark/sweep;
	// RefCount is an optimization hint, not the source of truth.
	RefCount int32 `json:"ref_count"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Oid is a local alias so domain types don't force every caller to import
// the oid package directly for field declarations.
type Oid = oid.Oid

// NewBlob builds a Blob record for content freshly written to the object
// database.
func NewBlob(id Oid, size int64, chunked bool) *Blob {
	now := time.Now().UTC()
	return &Blob{
		Oid:          id,
		Size:         size,
		Chunked:      chunked,
		RefCount:     1,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// IsOrphan reports whether no live reference points at this blob.
func (b *Blob) IsOrphan() bool {
	return b.RefCount <= 0
}

// CanGarbageCollect reports whether b has been orphaned for longer than
// gracePeriod — objects younger than that may belong to an in-progress
// write that hasn't yet landed a referencing commit.
func (b *Blob) CanGarbageCollect(gracePeriod time.Duration) bool {
	if !b.IsOrphan() {
		return false
	}
	return time.Since(b.CreatedAt) > gracePeriod
}
