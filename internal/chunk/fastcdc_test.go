package chunk

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectParams(t *testing.T) {
	assert.Equal(t, SmallParams, SelectParams(1<<20))
	assert.Equal(t, DefaultParams, SelectParams(50<<20))
	assert.Equal(t, StreamParams, SelectParams(200<<20))
}

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}

func TestFastCDC_ChunkAll_ReassemblesSource(t *testing.T) {
	data := randomBytes(2<<20, 1)
	f := NewFastCDC(DefaultParams)

	chunks, err := f.ChunkAll(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, data, reassembled)
}

func TestFastCDC_StableAcrossInsertion(t *testing.T) {
	data := randomBytes(4<<20, 2)
	f := NewFastCDC(DefaultParams)

	before, err := f.ChunkAll(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)

	edited := append(append(append([]byte{}, data[:1<<20]...), []byte("inserted-bytes-here")...), data[1<<20:]...)
	after, err := NewFastCDC(DefaultParams).ChunkAll(context.Background(), bytes.NewReader(edited))
	require.NoError(t, err)

	beforeHashes := map[string]bool{}
	for _, c := range before {
		beforeHashes[string(c.Data)] = true
	}
	shared := 0
	for _, c := range after {
		if beforeHashes[string(c.Data)] {
			shared++
		}
	}
	// An insertion near the start should leave the majority of later chunks
	// byte-identical; a fixed-size chunker would share almost none.
	assert.Greater(t, shared, len(before)/2)
}

func TestFastCDC_ContextCancellation(t *testing.T) {
	data := randomBytes(8<<20, 3)
	f := NewFastCDC(SmallParams)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ChunkAll(ctx, bytes.NewReader(data))
	assert.Error(t, err)
}
