package compress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_MatchesSpecTable(t *testing.T) {
	cases := []struct {
		name string
		want Strategy
	}{
		{"clip.mp4", Store},
		{"photo.jpg", Store},
		{"archive.zip", Store},
		{"layers.psd", Zstd},
		{"model.fbx", Zstd},
		{"audio.wav", Zstd},
		{"notes.md", Brotli},
		{"main.go", Brotli},
		{"mystery.xyz", Zstd},
	}
	for _, c := range cases {
		got, _ := Select(c.name)
		assert.Equal(t, c.want, got, c.name)
	}
}

func TestSelect_BestLevelForRawAndText(t *testing.T) {
	_, level := Select("layers.psd")
	assert.Equal(t, LevelBest, level)

	_, level = Select("notes.md")
	assert.Equal(t, LevelBest, level)

	_, level = Select("audio.wav")
	assert.Equal(t, LevelDefault, level)
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	for _, strategy := range []Strategy{Store, Zstd, Brotli} {
		blob, err := Compress(payload, strategy, LevelDefault)
		require.NoError(t, err, strategy)

		out, err := Decompress(blob)
		require.NoError(t, err, strategy)
		assert.Equal(t, payload, out, strategy)
	}
}

func TestCompress_BelowMinSizeForcesStore(t *testing.T) {
	payload := []byte("short")
	blob, err := Compress(payload, Zstd, LevelDefault)
	require.NoError(t, err)
	assert.Equal(t, tagStore, blob[0])

	out, err := Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompress_LegacyZlibFallback(t *testing.T) {
	payload := []byte("legacy object predating the tagged header format")

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := Decompress(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompressReader_StreamsZstd(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7a}, 10000)
	blob, err := Compress(payload, Zstd, LevelBest)
	require.NoError(t, err)

	rc, err := DecompressReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer rc.Close()

	out, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompress_UnrecognizedTag(t *testing.T) {
	_, err := Decompress([]byte{0xff, 0x01, 0x02})
	assert.Error(t, err)
}
