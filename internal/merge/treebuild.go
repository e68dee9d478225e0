package merge

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
)

// mergeDirNode rebuilds a nested directory structure from the flat
// path -> entry map a merge produces, mirroring workingtree's dirNode so a
// merge commit's tree is written bottom-up the same way a regular commit's
// is.
type mergeDirNode struct {
	files   map[string]FlatEntry
	subdirs map[string]*mergeDirNode
}

func newMergeDirNode() *mergeDirNode {
	return &mergeDirNode{files: make(map[string]FlatEntry), subdirs: make(map[string]*mergeDirNode)}
}

func (n *mergeDirNode) insert(p string, entry FlatEntry) {
	parts := strings.Split(p, "/")
	cur := n
	for i, part := range parts {
		if i == len(parts)-1 {
			cur.files[part] = entry
			continue
		}
		child, ok := cur.subdirs[part]
		if !ok {
			child = newMergeDirNode()
			cur.subdirs[part] = child
		}
		cur = child
	}
}

// write recursively stores n as a Tree object, subdirectories first.
func (n *mergeDirNode) write(ctx context.Context, db *odb.DB) (oid.Oid, error) {
	var entries []domain.TreeEntry

	for name, entry := range n.files {
		entries = append(entries, domain.TreeEntry{
			Name: name, Mode: domain.ModeFile, Oid: entry.Oid, Kind: domain.KindBlob, Size: entry.Size,
		})
	}

	names := make([]string, 0, len(n.subdirs))
	for name := range n.subdirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childOid, err := n.subdirs[name].write(ctx, db)
		if err != nil {
			return oid.Oid{}, err
		}
		entries = append(entries, domain.TreeEntry{
			Name: name, Mode: domain.ModeDir, Oid: childOid, Kind: domain.KindTree,
		})
	}

	tree := domain.NewTree(entries)
	encoded, err := tree.Encode()
	if err != nil {
		return oid.Oid{}, fmt.Errorf("merge: encode tree: %w", err)
	}
	res, err := db.Put(ctx, bytes.NewReader(encoded), odb.PutOptions{Name: "tree.cbor"})
	if err != nil {
		return oid.Oid{}, fmt.Errorf("merge: store tree: %w", err)
	}
	return res.Oid, nil
}
