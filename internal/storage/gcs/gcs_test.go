package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResumableThreshold_BiggerThanChunkSize(t *testing.T) {
	assert.Greater(t, int64(ResumableThreshold), int64(ChunkSize))
}
