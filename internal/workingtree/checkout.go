package workingtree

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/oid"
)

// flatEntry pairs a flattened file path with the tree entry describing it.
type flatEntry struct {
	path string
	oid  oid.Oid
	size int64
}

// flattenTree walks a (possibly nested) Tree recursively, loading child
// trees from db as needed, and returns every file entry keyed by its full
// slash-separated path.
func flattenTree(ctx context.Context, db treeReader, root *domain.Tree, prefix string, out map[string]flatEntry) error {
	for _, e := range root.Entries {
		full := treeEntryPath(prefix, e.Name)
		switch e.Kind {
		case domain.KindTree:
			data, err := db.Get(ctx, e.Oid)
			if err != nil {
				return fmt.Errorf("workingtree: load subtree %s: %w", full, err)
			}
			child, err := domain.DecodeTree(data)
			if err != nil {
				return fmt.Errorf("workingtree: decode subtree %s: %w", full, err)
			}
			if err := flattenTree(ctx, db, child, full, out); err != nil {
				return err
			}
		default:
			out[full] = flatEntry{path: full, oid: e.Oid, size: e.Size}
		}
	}
	return nil
}

// treeReader is the subset of *odb.DB that tree flattening needs, so tests
// can substitute a fake without wiring a whole object database.
type treeReader interface {
	Get(ctx context.Context, id oid.Oid) ([]byte, error)
}

// loadCommitTree resolves commitOid to its Commit object, then its Tree,
// flattened to path -> entry.
func (wt *WorkingTree) loadCommitTree(ctx context.Context, commitOid oid.Oid) (map[string]flatEntry, oid.Oid, error) {
	data, err := wt.db.Get(ctx, commitOid)
	if err != nil {
		return nil, oid.Oid{}, fmt.Errorf("workingtree: load commit %s: %w", commitOid, err)
	}
	commit, err := domain.DecodeCommit(data)
	if err != nil {
		return nil, oid.Oid{}, fmt.Errorf("workingtree: decode commit %s: %w", commitOid, err)
	}

	treeData, err := wt.db.Get(ctx, commit.TreeOid)
	if err != nil {
		return nil, oid.Oid{}, fmt.Errorf("workingtree: load tree %s: %w", commit.TreeOid, err)
	}
	tree, err := domain.DecodeTree(treeData)
	if err != nil {
		return nil, oid.Oid{}, fmt.Errorf("workingtree: decode tree %s: %w", commit.TreeOid, err)
	}

	flat := make(map[string]flatEntry)
	if err := flattenTree(ctx, wt.db, tree, "", flat); err != nil {
		return nil, oid.Oid{}, err
	}
	return flat, commit.TreeOid, nil
}

// Checkout switches the working tree to targetCommit, writing/removing
// only the files that actually differ between the current HEAD tree and
// the target tree (spec §4.6: differential checkout).
func (wt *WorkingTree) Checkout(ctx context.Context, targetCommit oid.Oid) (CheckoutStats, error) {
	start := time.Now()

	headCommit, err := wt.refs.ResolveHead(ctx)
	hadHead := err == nil

	if hadHead && headCommit == targetCommit {
		return CheckoutStats{Elapsed: time.Since(start)}, nil
	}

	var headFlat map[string]flatEntry
	var headTreeOid oid.Oid
	if hadHead {
		headFlat, headTreeOid, err = wt.loadCommitTree(ctx, headCommit)
		if err != nil {
			return CheckoutStats{}, err
		}
	} else {
		headFlat = map[string]flatEntry{}
	}

	targetFlat, targetTreeOid, err := wt.loadCommitTree(ctx, targetCommit)
	if err != nil {
		return CheckoutStats{}, err
	}

	if hadHead && headTreeOid == targetTreeOid {
		return CheckoutStats{Elapsed: time.Since(start)}, nil
	}

	var stats CheckoutStats
	for p, target := range targetFlat {
		head, existed := headFlat[p]
		if !existed {
			if err := wt.writeWorkingFile(ctx, p, target.oid); err != nil {
				return stats, err
			}
			wt.index.Set(p, IndexEntry{Oid: target.oid, Size: target.size, Mtime: time.Now().UTC(), Mode: uint32(domain.ModeFile)})
			stats.Added++
			continue
		}
		if head.oid != target.oid {
			if err := wt.writeWorkingFile(ctx, p, target.oid); err != nil {
				return stats, err
			}
			wt.index.Set(p, IndexEntry{Oid: target.oid, Size: target.size, Mtime: time.Now().UTC(), Mode: uint32(domain.ModeFile)})
			stats.Modified++
			continue
		}
		stats.Unchanged++
	}

	for p := range headFlat {
		if _, ok := targetFlat[p]; !ok {
			if err := wt.fs.Remove(wt.fullPath(p)); err != nil && !isNotExistErr(err) {
				return stats, fmt.Errorf("workingtree: remove %s: %w", p, err)
			}
			wt.index.Remove(p)
			stats.Removed++
		}
	}

	branch, err := wt.refs.CurrentBranch(ctx)
	if err != nil {
		return stats, err
	}
	if branch != "" {
		old := oid.Zero
		if hadHead {
			old = headCommit
		}
		if err := wt.refs.CAS(ctx, branch, old, targetCommit); err != nil {
			return stats, fmt.Errorf("workingtree: move %s: %w", branch, err)
		}
	} else {
		if err := wt.refs.SetOid(ctx, "HEAD", targetCommit); err != nil {
			return stats, fmt.Errorf("workingtree: detach HEAD: %w", err)
		}
	}

	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (wt *WorkingTree) writeWorkingFile(ctx context.Context, relPath string, id oid.Oid) error {
	data, err := wt.db.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("workingtree: load blob %s for %s: %w", id, relPath, err)
	}
	full := wt.fullPath(relPath)
	if err := wt.fs.MkdirAll(parentDir(full), 0o755); err != nil {
		return fmt.Errorf("workingtree: mkdir for %s: %w", relPath, err)
	}
	dst, err := wt.fs.Create(full)
	if err != nil {
		return fmt.Errorf("workingtree: create %s: %w", relPath, err)
	}
	defer dst.Close()
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("workingtree: write %s: %w", relPath, err)
	}
	return nil
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}

func isNotExistErr(err error) bool {
	return os.IsNotExist(err)
}
