package chunk

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPSD constructs a minimal single-layer PSD: header, empty color mode
// data, empty image resources, one layer record with one channel, followed
// by that channel's raw pixel data, then a merged-image tail.
func buildPSD(channelDataSize int, tail int) []byte {
	var buf bytes.Buffer
	buf.WriteString("8BPS")
	binary.Write(&buf, binary.BigEndian, uint16(1)) // version
	buf.Write(make([]byte, 6))                      // reserved
	binary.Write(&buf, binary.BigEndian, uint16(1)) // channels
	binary.Write(&buf, binary.BigEndian, uint32(8)) // height
	binary.Write(&buf, binary.BigEndian, uint32(8)) // width
	binary.Write(&buf, binary.BigEndian, uint16(8)) // depth
	binary.Write(&buf, binary.BigEndian, uint16(3)) // color mode: RGB

	binary.Write(&buf, binary.BigEndian, uint32(0)) // color mode data length
	binary.Write(&buf, binary.BigEndian, uint32(0)) // image resources length

	var layerRecord bytes.Buffer
	binary.Write(&layerRecord, binary.BigEndian, uint32(0)) // top
	binary.Write(&layerRecord, binary.BigEndian, uint32(0)) // left
	binary.Write(&layerRecord, binary.BigEndian, uint32(8)) // bottom
	binary.Write(&layerRecord, binary.BigEndian, uint32(8)) // right
	binary.Write(&layerRecord, binary.BigEndian, uint16(1)) // channel count
	binary.Write(&layerRecord, binary.BigEndian, uint16(0)) // channel id
	binary.Write(&layerRecord, binary.BigEndian, uint32(channelDataSize))
	layerRecord.WriteString("8BIM")
	layerRecord.WriteString("norm")
	layerRecord.Write([]byte{255, 0, 0, 0}) // opacity, clipping, flags, filler
	binary.Write(&layerRecord, binary.BigEndian, uint32(0)) // extra data length

	var layerInfo bytes.Buffer
	binary.Write(&layerInfo, binary.BigEndian, int16(1)) // layer count
	layerInfo.Write(layerRecord.Bytes())

	var layerMask bytes.Buffer
	binary.Write(&layerMask, binary.BigEndian, uint32(layerInfo.Len()))
	layerMask.Write(layerInfo.Bytes())

	binary.Write(&buf, binary.BigEndian, uint32(layerMask.Len()))
	buf.Write(layerMask.Bytes())

	buf.Write(randomBytes(channelDataSize, 11))
	buf.Write(randomBytes(tail, 12))

	return buf.Bytes()
}

func TestPSDLayerChunker_SplitsAtLayerData(t *testing.T) {
	raw := buildPSD(256, 64)
	p := &PSDLayerChunker{fallback: NewFastCDC(SmallParams)}

	chunks, err := p.ChunkAll(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, raw, reassembled)
}

func TestPSDLayerChunker_FallsBackOnGarbage(t *testing.T) {
	garbage := randomBytes(1<<16, 13)
	p := &PSDLayerChunker{fallback: NewFastCDC(SmallParams)}

	chunks, err := p.ChunkAll(context.Background(), bytes.NewReader(garbage))
	require.NoError(t, err)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, garbage, reassembled)
}
