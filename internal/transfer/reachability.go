// Package transfer implements incremental push/pull over a pluggable
// RemotePeer abstraction (spec §4.8): reachability-based object-set
// negotiation, bounded-concurrency streaming, and CAS on the destination
// ref.
package transfer

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
)

// ObjectStore is the subset of *odb.DB the reachability walk needs: Get
// transparently resolves a stored object regardless of whether it is
// plain, chunked, or delta-encoded, so the walk below only ever deals in
// logical content — exactly what a destination needs to reconstruct via
// its own Put, independent of how the source happened to store it
// physically. (Transfer never walks physical storage dependencies via
// odb.DB.Dependencies, since it moves resolved content and lets each side
// pick its own chunking/delta representation.)
type ObjectStore interface {
	Get(ctx context.Context, id oid.Oid) ([]byte, error)
}

var _ ObjectStore = (*odb.DB)(nil)

// ReachableOids walks the logical object closure starting at tip: the
// commit itself, every ancestor commit, every tree reachable from each
// commit (recursively through subtrees), and every blob a tree names
// (spec §4.8: "walk trees/commits/deltas/manifests" — delta/manifest
// internals are a storage-layer detail Get already resolves transparently,
// so the logical walk here is exactly the set a destination must have
// resolvable content for before a ref naming tip can be trusted).
func ReachableOids(ctx context.Context, store ObjectStore, tip oid.Oid) (map[oid.Oid]bool, error) {
	seen := make(map[oid.Oid]bool)
	queue := []oid.Oid{tip}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		data, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("transfer: load %s: %w", id, err)
		}

		switch objectShape(data) {
		case shapeCommit:
			commit, err := domain.DecodeCommit(data)
			if err != nil {
				continue
			}
			queue = append(queue, commit.TreeOid)
			queue = append(queue, commit.Parents...)
		case shapeTree:
			tree, err := domain.DecodeTree(data)
			if err != nil {
				continue
			}
			for _, e := range tree.Entries {
				queue = append(queue, e.Oid)
			}
		}
	}

	return seen, nil
}

type objectKind int

const (
	shapeBlob objectKind = iota
	shapeTree
	shapeCommit
)

// objectShape inspects the raw CBOR map's keys to distinguish a Tree
// (carries "entries"), a Commit (carries "tree_oid"), and an opaque blob —
// decoding straight into a concrete struct would silently "succeed" on the
// wrong shape, since CBOR leaves fields absent from the payload at their
// zero value rather than erroring.
func objectShape(data []byte) objectKind {
	var fields map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return shapeBlob
	}
	if _, ok := fields["tree_oid"]; ok {
		return shapeCommit
	}
	if _, ok := fields["entries"]; ok {
		return shapeTree
	}
	return shapeBlob
}
