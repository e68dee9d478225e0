package domain

import (
	"time"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// Signature identifies the author or committer of a Commit.
type Signature struct {
	Name  string `cbor:"name"`
	Email string `cbor:"email"`
}

// Commit is a point in the version history: a tree snapshot, its parent
// commit(s) (more than one for a merge commit), and attribution.
type Commit struct {
	TreeOid   oid.Oid   `cbor:"tree_oid"`
	Parents   []oid.Oid `cbor:"parents"`
	Author    Signature `cbor:"author"`
	Committer Signature `cbor:"committer"`
	Timestamp time.Time `cbor:"timestamp"`
	Message   string    `cbor:"message"`
}

// Encode serializes c in canonical CBOR form.
func (c *Commit) Encode() ([]byte, error) {
	return marshalCanonical(c)
}

// DecodeCommit parses canonical CBOR bytes produced by Commit.Encode.
func DecodeCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := unmarshalCanonical(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// IsMerge reports whether c has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// IsRoot reports whether c has no parent.
func (c *Commit) IsRoot() bool {
	return len(c.Parents) == 0
}
