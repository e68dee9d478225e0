package delta

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetClass_Thresholds(t *testing.T) {
	assert.Equal(t, 0.70, ClassText.Threshold())
	assert.Equal(t, 0.75, Class3D.Threshold())
	assert.Equal(t, 0.85, ClassRawImage.Threshold())
	assert.Equal(t, 0.90, ClassAudio.Threshold())
}

func TestClassifyExtension(t *testing.T) {
	assert.Equal(t, ClassText, ClassifyExtension("md"))
	assert.Equal(t, Class3D, ClassifyExtension("fbx"))
	assert.Equal(t, ClassRawImage, ClassifyExtension("psd"))
	assert.Equal(t, ClassAudio, ClassifyExtension("wav"))
	assert.Equal(t, ClassOther, ClassifyExtension("bin"))
}

func TestJaccardSimilarity_IdenticalIsOne(t *testing.T) {
	data := bytes.Repeat([]byte("some repeating content for fingerprinting"), 100)
	fp := fingerprintBytes(data)
	assert.Equal(t, 1.0, JaccardSimilarity(fp, fp))
}

func TestJaccardSimilarity_DisjointIsZero(t *testing.T) {
	a := fingerprintBytes(bytes.Repeat([]byte{0x01}, 10000))
	b := fingerprintBytes(bytes.Repeat([]byte{0x02}, 10000))
	assert.Equal(t, 0.0, JaccardSimilarity(a, b))
}

func TestShouldAttemptDelta_HighOverlapPassesThreshold(t *testing.T) {
	base := bytes.Repeat([]byte("repeated payload block "), 1000)
	target := append(append([]byte{}, base...), []byte("a small tail edit")...)

	ok, sim, err := ShouldAttemptDelta(context.Background(), bytes.NewReader(base), bytes.NewReader(target), ClassText)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, sim, ClassText.Threshold())
}

func TestShouldAttemptDelta_NoOverlapFailsThreshold(t *testing.T) {
	base := bytes.Repeat([]byte{0xAA}, 10000)
	target := bytes.Repeat([]byte{0x55}, 10000)

	ok, _, err := ShouldAttemptDelta(context.Background(), bytes.NewReader(base), bytes.NewReader(target), ClassAudio)
	require.NoError(t, err)
	assert.False(t, ok)
}
