package domain

import (
	"sort"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// EntryMode records the POSIX-ish permission bits carried on a tree entry.
// Only a small, fixed set of modes is meaningful for media assets — there
// is no executable bit tracking beyond what the working tree already has.
type EntryMode uint32

const (
	ModeFile EntryMode = 0o100644
	ModeDir  EntryMode = 0o040000
)

// TreeEntry is one child of a Tree: a name plus the kind and oid of the
// object it points to, and the logical size for display/progress purposes.
type TreeEntry struct {
	Name string    `cbor:"name"`
	Mode EntryMode `cbor:"mode"`
	Oid  oid.Oid   `cbor:"oid"`
	Kind Kind      `cbor:"kind"`
	Size int64     `cbor:"size"`
}

// Tree is a directory snapshot: a canonically-sorted list of entries. Two
// Trees with the same entries in the same canonical order encode to the
// same bytes and therefore hash to the same oid.
type Tree struct {
	Entries []TreeEntry `cbor:"entries"`
}

// NewTree builds a Tree from entries, sorting them into canonical order.
// Canonical order is byte-wise ascending by Name. (This is not CBOR's
// canonical map-key order, which sorts shorter keys first.)
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Tree{Entries: sorted}
}

// Encode serializes t in canonical CBOR form.
func (t *Tree) Encode() ([]byte, error) {
	return marshalCanonical(t)
}

// DecodeTree parses canonical CBOR bytes produced by Tree.Encode.
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := unmarshalCanonical(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Find returns the entry named name, or false if absent.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	// Entries are sorted, but the list is small enough in practice
	// (a directory's immediate children) that a linear scan is simpler
	// and just as fast as a binary search at these sizes.
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// IsSorted reports whether t.Entries is already in canonical order. It
// does not re-sort; DecodeTree and the transfer code do not call it.
func (t *Tree) IsSorted() bool {
	return sort.SliceIsSorted(t.Entries, func(i, j int) bool {
		return t.Entries[i].Name < t.Entries[j].Name
	})
}
