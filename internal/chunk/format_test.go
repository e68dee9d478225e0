package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_ByMagic(t *testing.T) {
	assert.Equal(t, FormatPSD, Detect("asset.bin", []byte("8BPS\x00\x01")))
	assert.Equal(t, FormatWAV, Detect("asset.bin", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WAVE")...)))
	assert.Equal(t, FormatMP4, Detect("asset.bin", []byte("\x00\x00\x00\x18ftypisom")))
}

func TestDetect_ByExtensionFallback(t *testing.T) {
	assert.Equal(t, FormatMP4, Detect("clip.mov", nil))
	assert.Equal(t, FormatWAV, Detect("audio.WAV", nil))
	assert.Equal(t, FormatPSD, Detect("layers.psd", nil))
	assert.Equal(t, FormatUnknown, Detect("data.bin", nil))
}

func TestForFormat_ReturnsDedicatedChunkers(t *testing.T) {
	assert.IsType(t, &MP4GOPChunker{}, ForFormat(FormatMP4, DefaultParams))
	assert.IsType(t, &WAVFrameChunker{}, ForFormat(FormatWAV, DefaultParams))
	assert.IsType(t, &PSDLayerChunker{}, ForFormat(FormatPSD, DefaultParams))
	assert.IsType(t, &FastCDC{}, ForFormat(FormatUnknown, DefaultParams))
}
