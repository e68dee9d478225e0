package domain

import "github.com/mediavault/mediavault-core/internal/oid"

// ChunkEntry is one piece of a chunked blob: the oid of the stored chunk
// (which may itself be a delta against another chunk), its byte range
// within the reassembled file, and whether it resolves directly to a Blob
// or indirectly through a delta Chunk object.
type ChunkEntry struct {
	Oid    oid.Oid `cbor:"oid"`
	Offset int64   `cbor:"offset"`
	Size   int64   `cbor:"size"`
	Kind   Kind    `cbor:"kind"`
}

// ChunkManifest records how a large blob was split into content-defined
// chunks, stored in a namespace separate from the object database proper
// (manifests/<oid>.bin) so a manifest lookup never races an object lookup
// sharing the same key space.
type ChunkManifest struct {
	FilePath  string       `cbor:"file_path"`
	TotalSize int64        `cbor:"total_size"`
	Chunks    []ChunkEntry `cbor:"chunks"`
}

// Encode serializes m in canonical CBOR form.
func (m *ChunkManifest) Encode() ([]byte, error) {
	return marshalCanonical(m)
}

// DecodeChunkManifest parses canonical CBOR bytes produced by
// ChunkManifest.Encode.
func DecodeChunkManifest(data []byte) (*ChunkManifest, error) {
	var m ChunkManifest
	if err := unmarshalCanonical(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports whether the chunk entries' offsets and sizes tile
// [0, TotalSize) contiguously with no gaps or overlaps.
func (m *ChunkManifest) Validate() bool {
	var want int64
	for _, c := range m.Chunks {
		if c.Offset != want || c.Size < 0 {
			return false
		}
		want += c.Size
	}
	return want == m.TotalSize
}
