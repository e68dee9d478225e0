package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/storage"
)

func TestStorage_PutGetExistsDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))

	require.NoError(t, s.Put(ctx, "k", bytes.NewReader([]byte("v")), 1))

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got, _ := io.ReadAll(r)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	ok, _ = s.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestStorage_List(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "objects/a", bytes.NewReader([]byte("1")), 1))
	require.NoError(t, s.Put(ctx, "objects/b", bytes.NewReader([]byte("1")), 1))
	require.NoError(t, s.Put(ctx, "refs/heads/main", bytes.NewReader([]byte("1")), 1))

	keys, err := s.List(ctx, "objects")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"objects/a", "objects/b"}, keys)
}
