package azure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockIDGen_ProducesDistinctIDs(t *testing.T) {
	g := newBlockIDGen()
	a := g.next()
	b := g.next()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len(b))
}

func TestBlobName_IsIdentity(t *testing.T) {
	assert.Equal(t, "objects/ab/cdef", blobName("objects/ab/cdef"))
}

func TestBlockThreshold_BiggerThanBlockSize(t *testing.T) {
	assert.Greater(t, int64(BlockThreshold), int64(BlockSize))
}
