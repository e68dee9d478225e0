package domain

import (
	"time"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// Tag is a named, immutable pointer at a commit (or, less commonly, any
// other object kind), carrying its own attribution separate from the
// commit it points at.
type Tag struct {
	Name       string    `cbor:"name"`
	TargetOid  oid.Oid   `cbor:"target_oid"`
	TargetKind Kind      `cbor:"target_kind"`
	Tagger     Signature `cbor:"tagger"`
	Timestamp  time.Time `cbor:"timestamp"`
	Message    string    `cbor:"message"`
}

// Encode serializes t in canonical CBOR form.
func (t *Tag) Encode() ([]byte, error) {
	return marshalCanonical(t)
}

// DecodeTag parses canonical CBOR bytes produced by Tag.Encode.
func DecodeTag(data []byte) (*Tag, error) {
	var t Tag
	if err := unmarshalCanonical(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
