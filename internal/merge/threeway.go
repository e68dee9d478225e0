package merge

import (
	"context"
	"fmt"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/oid"
)

// TreeLoader resolves a tree oid to its decoded Tree, used to flatten a
// nested directory structure into a path -> entry map.
type TreeLoader interface {
	Get(ctx context.Context, id oid.Oid) ([]byte, error)
}

// FlatEntry is one file in a flattened tree: its path and the object it
// points to.
type FlatEntry struct {
	Oid  oid.Oid
	Size int64
}

// Flatten walks tree recursively, loading subtrees via loader, into a
// path -> FlatEntry map. Unlike workingtree's identical-purpose helper,
// this one is exported since merge operates on trees loaded straight from
// the object database rather than from a live working copy.
func Flatten(ctx context.Context, loader TreeLoader, tree *domain.Tree, prefix string) (map[string]FlatEntry, error) {
	out := make(map[string]FlatEntry)
	if err := flattenInto(ctx, loader, tree, prefix, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(ctx context.Context, loader TreeLoader, tree *domain.Tree, prefix string, out map[string]FlatEntry) error {
	for _, e := range tree.Entries {
		full := joinPath(prefix, e.Name)
		if e.Kind == domain.KindTree {
			data, err := loader.Get(ctx, e.Oid)
			if err != nil {
				return fmt.Errorf("merge: load subtree %s: %w", full, err)
			}
			child, err := domain.DecodeTree(data)
			if err != nil {
				return fmt.Errorf("merge: decode subtree %s: %w", full, err)
			}
			if err := flattenInto(ctx, loader, child, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = FlatEntry{Oid: e.Oid, Size: e.Size}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ConflictKind names which row of spec §4.7's three-way merge table
// produced an unresolved conflict.
type ConflictKind string

const (
	ConflictAddAdd        ConflictKind = "add_add"
	ConflictModifyModify  ConflictKind = "modify_modify"
	ConflictDeleteModify  ConflictKind = "delete_modify"
)

// Conflict describes one path the merge could not resolve automatically.
// Base/Ours/Theirs are nil when the path was absent on that side.
type Conflict struct {
	Path  string
	Kind  ConflictKind
	Base  *FlatEntry
	Ours  *FlatEntry
	Theirs *FlatEntry
}

// Result is the outcome of a three-way tree merge: the merged path -> entry
// map (only for paths the merge resolved) plus any unresolved conflicts.
type Result struct {
	Merged    map[string]FlatEntry
	Conflicts []Conflict
}

// ThreeWayMerge implements the table in spec §4.7 verbatim: for every path
// appearing in base, ours, or theirs, decide add/keep/take-ours/
// take-theirs/remove, or surface a conflict. Rows marked "media-aware hook
// then conflict" and the two explicit conflict rows are surfaced as
// Conflicts rather than resolved here — resolution is the Resolver's job.
func ThreeWayMerge(base, ours, theirs map[string]FlatEntry) Result {
	paths := unionKeys(base, ours, theirs)
	result := Result{Merged: make(map[string]FlatEntry, len(paths))}

	for _, p := range paths {
		b, bOk := base[p]
		o, oOk := ours[p]
		t, tOk := theirs[p]

		switch {
		case !bOk && !oOk && tOk:
			result.Merged[p] = t
		case !bOk && oOk && !tOk:
			result.Merged[p] = o
		case !bOk && oOk && tOk:
			if o.Oid == t.Oid {
				result.Merged[p] = o
			} else {
				result.Conflicts = append(result.Conflicts, Conflict{Path: p, Kind: ConflictAddAdd, Ours: ptr(o), Theirs: ptr(t)})
			}
		case bOk && !oOk && !tOk:
			// removed on both sides: nothing to merge in.
		case bOk && oOk && !tOk:
			if o.Oid == b.Oid {
				// removed on theirs, unchanged on ours: remove.
			} else {
				result.Conflicts = append(result.Conflicts, Conflict{Path: p, Kind: ConflictDeleteModify, Base: ptr(b), Ours: ptr(o)})
			}
		case bOk && !oOk && tOk:
			if t.Oid == b.Oid {
				// removed on ours, unchanged on theirs: remove.
			} else {
				result.Conflicts = append(result.Conflicts, Conflict{Path: p, Kind: ConflictDeleteModify, Base: ptr(b), Theirs: ptr(t)})
			}
		case bOk && oOk && tOk:
			oursChanged := o.Oid != b.Oid
			theirsChanged := t.Oid != b.Oid
			switch {
			case !oursChanged && !theirsChanged:
				result.Merged[p] = b
			case !oursChanged && theirsChanged:
				result.Merged[p] = t
			case oursChanged && !theirsChanged:
				result.Merged[p] = o
			case o.Oid == t.Oid:
				result.Merged[p] = o
			default:
				result.Conflicts = append(result.Conflicts, Conflict{Path: p, Kind: ConflictModifyModify, Base: ptr(b), Ours: ptr(o), Theirs: ptr(t)})
			}
		}
	}

	return result
}

func ptr(e FlatEntry) *FlatEntry { return &e }

func unionKeys(maps ...map[string]FlatEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
