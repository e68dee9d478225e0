package chunk

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV constructs a minimal 16-bit stereo PCM WAV file with nFrames
// sample frames of arbitrary content.
func buildWAV(nFrames int) []byte {
	const (
		channels   = 2
		bitsPerSmp = 16
		sampleRate = 44100
	)
	blockAlign := channels * bitsPerSmp / 8
	dataSize := nFrames * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSmp))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	data := randomBytes(dataSize, 42)
	buf.Write(data)

	return buf.Bytes()
}

func TestWAVFrameChunker_AlignsOnBlockBoundaries(t *testing.T) {
	raw := buildWAV(10000)
	w := &WAVFrameChunker{fallback: NewFastCDC(DefaultParams), FrameGroup: 512}

	chunks, err := w.ChunkAll(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, raw, reassembled)

	// buildWAV's data payload starts at 44 (RIFF 12 + fmt 24 + data header 8)
	// with a 4-byte block-align (16-bit stereo).
	const dataStart, blockAlign = 44, 4
	for _, c := range chunks {
		if c.Offset > dataStart {
			assert.Zero(t, (c.Offset-dataStart)%blockAlign, "chunk at %d splits a sample frame", c.Offset)
		}
	}
}

func TestWAVFrameChunker_FallsBackOnGarbage(t *testing.T) {
	garbage := randomBytes(1<<20, 7)
	w := &WAVFrameChunker{fallback: NewFastCDC(SmallParams)}

	chunks, err := w.ChunkAll(context.Background(), bytes.NewReader(garbage))
	require.NoError(t, err)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, garbage, reassembled)
}
