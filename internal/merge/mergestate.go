package merge

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// mergeStateKey is a fixed, repo-wide key: only one merge can be in
// progress at a time (spec's single-writer model has no concept of
// concurrent merges on the same working copy).
const mergeStateKey = "MERGE_STATE"

// PendingConflict is one unresolved path recorded in a MergeState, enough
// for a later Continue call to re-check whether the user has supplied a
// resolution.
type PendingConflict struct {
	Path string       `cbor:"path"`
	Kind ConflictKind `cbor:"kind"`
}

// MergeState is the in-repo record of a merge that stopped on unresolved
// conflicts, so a follow-up continue operation can pick up where it left
// off instead of re-running LCA search and the tree diff from scratch
// (spec §4.7: "the engine records unresolved paths in an in-repo
// merge-state record so a follow-up continue operation can proceed").
type MergeState struct {
	Ours      oid.Oid           `cbor:"ours"`
	Theirs    oid.Oid           `cbor:"theirs"`
	Base      []oid.Oid         `cbor:"base"`
	Merged    map[string]FlatEntry `cbor:"merged"`
	Conflicts []PendingConflict `cbor:"conflicts"`
	Author    domain.Signature  `cbor:"author"`
}

// SaveState persists state under the fixed merge-state key, overwriting
// any prior record.
func SaveState(ctx context.Context, backend storage.Backend, state *MergeState) error {
	data, err := cbor.Marshal(state)
	if err != nil {
		return fmt.Errorf("merge: encode state: %w", err)
	}
	return backend.Put(ctx, mergeStateKey, bytes.NewReader(data), int64(len(data)))
}

// LoadState reads back a previously saved MergeState, or a not-found error
// if no merge is in progress.
func LoadState(ctx context.Context, backend storage.Backend) (*MergeState, error) {
	r, err := backend.Get(ctx, mergeStateKey)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("merge: read state: %w", err)
	}
	var state MergeState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("merge: decode state: %w", err)
	}
	return &state, nil
}

// ClearState removes the merge-state record, called once a merge commits
// or is aborted.
func ClearState(ctx context.Context, backend storage.Backend) error {
	return backend.Delete(ctx, mergeStateKey)
}

// HasPendingMerge reports whether a MergeState is currently recorded.
func HasPendingMerge(ctx context.Context, backend storage.Backend) (bool, error) {
	return backend.Exists(ctx, mergeStateKey)
}
