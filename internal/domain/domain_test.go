package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/oid"
)

func TestTree_CanonicalOrderAndRoundTrip(t *testing.T) {
	a := oid.Of([]byte("a"))
	b := oid.Of([]byte("b"))
	tree := NewTree([]TreeEntry{
		{Name: "zeta.mov", Mode: ModeFile, Oid: b, Kind: KindBlob, Size: 10},
		{Name: "alpha.wav", Mode: ModeFile, Oid: a, Kind: KindBlob, Size: 5},
	})
	require.True(t, tree.IsSorted())
	assert.Equal(t, "alpha.wav", tree.Entries[0].Name)

	encoded, err := tree.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTree(encoded)
	require.NoError(t, err)
	assert.Equal(t, tree.Entries, decoded.Entries)

	reencoded, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestTree_Find(t *testing.T) {
	tree := NewTree([]TreeEntry{{Name: "clip.mp4", Kind: KindBlob}})
	entry, ok := tree.Find("clip.mp4")
	require.True(t, ok)
	assert.Equal(t, KindBlob, entry.Kind)

	_, ok = tree.Find("missing.mp4")
	assert.False(t, ok)
}

func TestCommit_RoundTripAndMergeDetection(t *testing.T) {
	c := &Commit{
		TreeOid:   oid.Of([]byte("tree")),
		Parents:   []oid.Oid{oid.Of([]byte("p1")), oid.Of([]byte("p2"))},
		Author:    Signature{Name: "a", Email: "a@example.com"},
		Committer: Signature{Name: "a", Email: "a@example.com"},
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Message:   "merge branches",
	}
	assert.True(t, c.IsMerge())
	assert.False(t, c.IsRoot())

	encoded, err := c.Encode()
	require.NoError(t, err)
	decoded, err := DecodeCommit(encoded)
	require.NoError(t, err)
	assert.Equal(t, c.TreeOid, decoded.TreeOid)
	assert.Equal(t, c.Parents, decoded.Parents)
	assert.True(t, c.Timestamp.Equal(decoded.Timestamp))
}

func TestTag_RoundTrip(t *testing.T) {
	tag := &Tag{
		Name:       "v1.0.0",
		TargetOid:  oid.Of([]byte("commit")),
		TargetKind: KindCommit,
		Tagger:     Signature{Name: "a", Email: "a@example.com"},
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		Message:    "release",
	}
	encoded, err := tag.Encode()
	require.NoError(t, err)
	decoded, err := DecodeTag(encoded)
	require.NoError(t, err)
	assert.Equal(t, tag.Name, decoded.Name)
	assert.Equal(t, tag.TargetOid, decoded.TargetOid)
}

func TestChunkManifest_ValidateDetectsGapsAndOverlaps(t *testing.T) {
	good := &ChunkManifest{
		FilePath:  "movie.mp4",
		TotalSize: 30,
		Chunks: []ChunkEntry{
			{Oid: oid.Of([]byte("c1")), Offset: 0, Size: 10, Kind: KindBlob},
			{Oid: oid.Of([]byte("c2")), Offset: 10, Size: 20, Kind: KindBlob},
		},
	}
	assert.True(t, good.Validate())

	gap := &ChunkManifest{
		TotalSize: 30,
		Chunks: []ChunkEntry{
			{Offset: 0, Size: 10},
			{Offset: 15, Size: 15},
		},
	}
	assert.False(t, gap.Validate())
}

func TestChunkManifest_RoundTrip(t *testing.T) {
	m := &ChunkManifest{
		FilePath:  "movie.mp4",
		TotalSize: 10,
		Chunks:    []ChunkEntry{{Oid: oid.Of([]byte("c1")), Offset: 0, Size: 10, Kind: KindBlob}},
	}
	encoded, err := m.Encode()
	require.NoError(t, err)
	decoded, err := DecodeChunkManifest(encoded)
	require.NoError(t, err)
	assert.Equal(t, m.Chunks, decoded.Chunks)
}

func TestBlob_GarbageCollectGracePeriod(t *testing.T) {
	b := NewBlob(oid.Of([]byte("x")), 100, false)
	b.RefCount = 0
	assert.True(t, b.IsOrphan())
	assert.False(t, b.CanGarbageCollect(24*time.Hour))

	b.CreatedAt = time.Now().Add(-48 * time.Hour)
	assert.True(t, b.CanGarbageCollect(24*time.Hour))
}
