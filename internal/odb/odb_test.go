package odb

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/delta"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
	"github.com/mediavault/mediavault-core/internal/storage/memory"
)

func newTestDB() *DB {
	return New(memory.New(), storage.DefaultPathConfig(), nil, DefaultConfig(), zerolog.Nop())
}

func TestPut_Get_RoundTrip(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	data := []byte("hello media vault, this is a small literal object")
	res, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "notes.txt"})
	require.NoError(t, err)
	require.False(t, res.Deduped)

	got, err := db.Get(ctx, res.Oid)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPut_DedupsIdenticalBytes(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	data := []byte("repeated payload")
	first, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "a.txt"})
	require.NoError(t, err)
	require.False(t, first.Deduped)

	second, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "a.txt"})
	require.NoError(t, err)
	require.True(t, second.Deduped)
	require.Equal(t, first.Oid, second.Oid)
}

func TestPut_ChunkedPathForLargeBlobs(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	data := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, (ChunkThreshold/4)+1024)
	res, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "big.bin"})
	require.NoError(t, err)
	require.True(t, res.Chunked)

	got, err := db.Get(ctx, res.Oid)
	require.NoError(t, err)
	require.Equal(t, data, got)

	exists, err := db.Exists(ctx, res.Oid)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPut_DeltaAgainstSimilarBase(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
	baseRes, err := db.Put(ctx, bytes.NewReader(base), PutOptions{Name: "doc.txt"})
	require.NoError(t, err)

	target := append(append([]byte{}, base...), []byte("one more sentence appended at the end.")...)
	res, err := db.Put(ctx, bytes.NewReader(target), PutOptions{
		Name:       "doc.txt",
		Base:       baseRes.Oid,
		BaseDepth:  0,
		AssetClass: delta.ClassText,
	})
	require.NoError(t, err)
	require.True(t, res.Deltified)
	require.Equal(t, 1, res.ChainDepth)

	got, err := db.Get(ctx, res.Oid)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestPut_DissimilarBaseFallsBackToLiteral(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	base := bytes.Repeat([]byte{0x00}, 4096)
	baseRes, err := db.Put(ctx, bytes.NewReader(base), PutOptions{Name: "a.bin"})
	require.NoError(t, err)

	target := make([]byte, 4096)
	for i := range target {
		target[i] = byte(i * 37)
	}
	res, err := db.Put(ctx, bytes.NewReader(target), PutOptions{
		Name:       "a.bin",
		Base:       baseRes.Oid,
		AssetClass: delta.ClassOther,
	})
	require.NoError(t, err)
	require.False(t, res.Deltified)

	got, err := db.Get(ctx, res.Oid)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestGet_DetectsCorruption(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	data := []byte("will be tampered with")
	res, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "x.txt"})
	require.NoError(t, err)

	key := db.paths.ObjectKey(res.Oid.String())
	require.NoError(t, db.backend.Delete(ctx, key))
	require.NoError(t, db.backend.Put(ctx, key, bytes.NewReader([]byte("not the right compressed bytes at all")), 37))

	_, err = db.Get(ctx, res.Oid)
	require.Error(t, err)
}

func TestDelete_RemovesObjectAndChunkedManifest(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	data := bytes.Repeat([]byte{0x11, 0x22}, (ChunkThreshold/2)+512)
	res, err := db.Put(ctx, bytes.NewReader(data), PutOptions{Name: "asset.bin"})
	require.NoError(t, err)
	require.True(t, res.Chunked)

	require.NoError(t, db.Delete(ctx, res.Oid))

	exists, err := db.manifest.Exists(ctx, res.Oid)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestOid_NotExists(t *testing.T) {
	db := newTestDB()
	ctx := context.Background()

	exists, err := db.Exists(ctx, oid.Of([]byte("never written")))
	require.NoError(t, err)
	require.False(t, exists)
}
