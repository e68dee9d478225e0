package chunk

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func writeBox(buf *bytes.Buffer, typ string, body []byte) {
	buf.Write(be32(uint32(8 + len(body))))
	buf.WriteString(typ)
	buf.Write(body)
}

// buildMP4 constructs a minimal ISOBMFF file with one video track whose
// sample table marks every 10th sample (1-based) as a sync sample, matching
// a simple fixed-GOP-length encode.
func buildMP4(sampleSizes []uint32, mdatOffset int64) ([]byte, []int64) {
	var syncNums []uint32
	var syncOffsets []int64
	var cumulative int64
	for i, sz := range sampleSizes {
		if i%10 == 0 {
			syncNums = append(syncNums, uint32(i+1))
			if i > 0 {
				syncOffsets = append(syncOffsets, mdatOffset+cumulative)
			}
		}
		cumulative += int64(sz)
	}

	var stsz bytes.Buffer
	stsz.Write([]byte{0, 0, 0, 0}) // version/flags
	stsz.Write(be32(0))            // default size 0: explicit table follows
	stsz.Write(be32(uint32(len(sampleSizes))))
	for _, sz := range sampleSizes {
		stsz.Write(be32(sz))
	}

	var stss bytes.Buffer
	stss.Write([]byte{0, 0, 0, 0})
	stss.Write(be32(uint32(len(syncNums))))
	for _, n := range syncNums {
		stss.Write(be32(n))
	}

	var stco bytes.Buffer
	stco.Write([]byte{0, 0, 0, 0})
	stco.Write(be32(1))
	stco.Write(be32(uint32(mdatOffset)))

	var stbl bytes.Buffer
	writeBox(&stbl, "stsz", stsz.Bytes())
	writeBox(&stbl, "stss", stss.Bytes())
	writeBox(&stbl, "stco", stco.Bytes())

	var minf bytes.Buffer
	writeBox(&minf, "stbl", stbl.Bytes())

	var mdia bytes.Buffer
	writeBox(&mdia, "minf", minf.Bytes())

	var trak bytes.Buffer
	writeBox(&trak, "mdia", mdia.Bytes())

	var moov bytes.Buffer
	writeBox(&moov, "trak", trak.Bytes())

	var out bytes.Buffer
	writeBox(&out, "ftyp", []byte("isomiso2mp41"))
	writeBox(&out, "moov", moov.Bytes())

	var total int64
	for _, s := range sampleSizes {
		total += int64(s)
	}
	writeBox(&out, "mdat", make([]byte, total))

	return out.Bytes(), syncOffsets
}

func TestMP4GOPChunker_SplitsAtSyncSamples(t *testing.T) {
	sizes := make([]uint32, 100)
	for i := range sizes {
		sizes[i] = 1000
	}

	// mdat body starts after ftyp(20) + moov(computed) + mdat header(8); we
	// don't know moov's size up front, so build once to learn mdatOffset,
	// then rebuild with the correct offset baked into stco.
	probe, _ := buildMP4(sizes, 0)
	boxes, err := walkBoxes(probe, 0, int64(len(probe)))
	require.NoError(t, err)
	var mdatOffset int64
	for _, b := range boxes {
		if b.typ == "mdat" {
			mdatOffset = b.body
		}
	}

	raw, wantOffsets := buildMP4(sizes, mdatOffset)
	m := &MP4GOPChunker{fallback: NewFastCDC(DefaultParams)}

	chunks, err := m.ChunkAll(context.Background(), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var reassembled []byte
	var gotOffsets []int64
	for i, c := range chunks {
		reassembled = append(reassembled, c.Data...)
		if i > 0 {
			gotOffsets = append(gotOffsets, c.Offset)
		}
	}
	assert.Equal(t, raw, reassembled)
	assert.Equal(t, wantOffsets, gotOffsets)
}

func TestMP4GOPChunker_FallsBackOnGarbage(t *testing.T) {
	garbage := randomBytes(1<<20, 9)
	m := &MP4GOPChunker{fallback: NewFastCDC(SmallParams)}

	chunks, err := m.ChunkAll(context.Background(), bytes.NewReader(garbage))
	require.NoError(t, err)

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, garbage, reassembled)
}
