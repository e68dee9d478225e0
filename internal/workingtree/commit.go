package workingtree

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// dirNode is an in-memory directory tree built from the index's flat
// path -> entry map, used to construct Tree objects bottom-up.
type dirNode struct {
	files   map[string]IndexEntry
	subdirs map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: make(map[string]IndexEntry), subdirs: make(map[string]*dirNode)}
}

// buildDirTree inserts every index path into a nested directory structure,
// splitting on "/".
func buildDirTree(idx *Index) *dirNode {
	root := newDirNode()
	for _, p := range idx.Paths() {
		entry, _ := idx.Get(p)
		parts := strings.Split(p, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				cur.files[part] = entry
				continue
			}
			child, ok := cur.subdirs[part]
			if !ok {
				child = newDirNode()
				cur.subdirs[part] = child
			}
			cur = child
		}
	}
	return root
}

// writeTree recursively stores node as a Tree object (subdirectories
// first, spec §4.6: "write trees first, then the commit object"),
// returning the resulting oid and the tree's total logical size.
func writeTree(ctx context.Context, db *odb.DB, node *dirNode) (oid.Oid, int64, error) {
	var entries []domain.TreeEntry
	var totalSize int64

	for name, entry := range node.files {
		entries = append(entries, domain.TreeEntry{
			Name: name, Mode: domain.ModeFile, Oid: entry.Oid, Kind: domain.KindBlob, Size: entry.Size,
		})
		totalSize += entry.Size
	}

	names := make([]string, 0, len(node.subdirs))
	for name := range node.subdirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childOid, childSize, err := writeTree(ctx, db, node.subdirs[name])
		if err != nil {
			return oid.Oid{}, 0, err
		}
		entries = append(entries, domain.TreeEntry{
			Name: name, Mode: domain.ModeDir, Oid: childOid, Kind: domain.KindTree, Size: childSize,
		})
		totalSize += childSize
	}

	tree := domain.NewTree(entries)
	encoded, err := tree.Encode()
	if err != nil {
		return oid.Oid{}, 0, fmt.Errorf("workingtree: encode tree: %w", err)
	}

	res, err := db.Put(ctx, bytes.NewReader(encoded), odb.PutOptions{Name: "tree.cbor"})
	if err != nil {
		return oid.Oid{}, 0, fmt.Errorf("workingtree: store tree: %w", err)
	}
	return res.Oid, totalSize, nil
}

// Commit builds the tree objects bottom-up from the index, writes the
// commit object, and compare-and-sets the current branch ref from old
// HEAD to the new commit oid (spec §4.6: commit(message)).
func (wt *WorkingTree) Commit(ctx context.Context, message string) (oid.Oid, error) {
	branch, err := wt.refs.CurrentBranch(ctx)
	if err != nil {
		return oid.Oid{}, fmt.Errorf("workingtree: resolve current branch: %w", err)
	}
	if branch == "" {
		return oid.Oid{}, fmt.Errorf("workingtree: HEAD is detached, cannot commit")
	}

	oldHead, err := wt.refs.ResolveHead(ctx)
	hadHead := err == nil
	if err != nil && !storage.IsNotFound(err) {
		return oid.Oid{}, err
	}

	root := buildDirTree(wt.index)
	treeOid, _, err := writeTree(ctx, wt.db, root)
	if err != nil {
		return oid.Oid{}, err
	}

	var parents []oid.Oid
	if hadHead {
		parents = []oid.Oid{oldHead}
	}

	now := time.Now().UTC()
	commit := &domain.Commit{
		TreeOid:   treeOid,
		Parents:   parents,
		Author:    wt.author,
		Committer: wt.author,
		Timestamp: now,
		Message:   message,
	}
	encoded, err := commit.Encode()
	if err != nil {
		return oid.Oid{}, fmt.Errorf("workingtree: encode commit: %w", err)
	}
	res, err := wt.db.Put(ctx, bytes.NewReader(encoded), odb.PutOptions{Name: "commit.cbor"})
	if err != nil {
		return oid.Oid{}, fmt.Errorf("workingtree: store commit: %w", err)
	}

	expectedOld := oid.Zero
	if hadHead {
		expectedOld = oldHead
	}
	if err := wt.refs.CAS(ctx, branch, expectedOld, res.Oid); err != nil {
		return oid.Oid{}, fmt.Errorf("workingtree: update ref %s: %w", branch, err)
	}

	return res.Oid, nil
}

// treeEntryPath joins a directory-relative name onto a parent path,
// producing the full slash-separated path used as an index/tree key.
func treeEntryPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
