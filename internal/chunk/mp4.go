package chunk

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// MP4GOPChunker splits an ISOBMFF (MP4/MOV) file at group-of-pictures
// boundaries instead of content-defined rolling-hash boundaries, so that an
// edit to one GOP never perturbs the chunk containing a neighboring GOP's
// bytes (spec §4.2: "format-aware chunkers MUST align boundaries with the
// format's own edit granularity where cheaply derivable"). It locates sync
// samples (keyframes) via the stss/stsz/stco|co64 box family and splits the
// mdat payload at their byte offsets. Any parse failure — missing boxes,
// fragmented (moof-based) files, corrupt tables — falls back to fcdc over
// the whole stream.
type MP4GOPChunker struct {
	fallback *FastCDC
}

type box struct {
	typ    string
	offset int64 // offset of box header, absolute in file
	size   int64 // total box size including header
	body   int64 // offset of box body (header end)
}

// Chunk implements Chunker.
func (m *MP4GOPChunker) Chunk(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errc := make(chan error, 1)

	buf, err := io.ReadAll(r)
	if err != nil {
		close(out)
		errc <- err
		close(errc)
		return out, errc
	}

	offsets, mdat, ferr := m.gopOffsets(buf)
	if ferr != nil || len(offsets) == 0 {
		return m.fallback.Chunk(ctx, newResettableReader(buf))
	}

	go func() {
		defer close(out)
		defer close(errc)
		if err := emitAtOffsets(ctx, out, buf, offsets, mdat); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

// ChunkAll implements Chunker.
func (m *MP4GOPChunker) ChunkAll(ctx context.Context, r io.Reader) ([]Chunk, error) {
	return chunkAllViaChannel(ctx, m, r)
}

// gopOffsets walks the top-level boxes of buf looking for moov/mdat, then
// extracts sync-sample byte offsets within mdat. It returns absolute byte
// offsets (within buf) at which to split, and the byte range of mdat itself.
func (m *MP4GOPChunker) gopOffsets(buf []byte) ([]int64, [2]int64, error) {
	boxes, err := walkBoxes(buf, 0, int64(len(buf)))
	if err != nil {
		return nil, [2]int64{}, err
	}

	var moov, mdat *box
	for i := range boxes {
		switch boxes[i].typ {
		case "moov":
			moov = &boxes[i]
		case "mdat":
			mdat = &boxes[i]
		}
	}
	if moov == nil || mdat == nil {
		return nil, [2]int64{}, fmt.Errorf("chunk: mp4 missing moov/mdat")
	}

	syncSampleOffsets, err := syncSampleByteOffsets(buf, *moov)
	if err != nil {
		return nil, [2]int64{}, err
	}
	return syncSampleOffsets, [2]int64{mdat.body, mdat.offset + mdat.size}, nil
}

// walkBoxes parses a flat sequence of ISOBMFF boxes in buf[start:end].
func walkBoxes(buf []byte, start, end int64) ([]box, error) {
	var boxes []box
	pos := start
	for pos < end {
		if end-pos < 8 {
			return nil, fmt.Errorf("chunk: mp4 truncated box header at %d", pos)
		}
		size := int64(binary.BigEndian.Uint32(buf[pos : pos+4]))
		typ := string(buf[pos+4 : pos+8])
		headerLen := int64(8)
		if size == 1 {
			if end-pos < 16 {
				return nil, fmt.Errorf("chunk: mp4 truncated largesize box at %d", pos)
			}
			size = int64(binary.BigEndian.Uint64(buf[pos+8 : pos+16]))
			headerLen = 16
		}
		if size < headerLen || pos+size > end {
			return nil, fmt.Errorf("chunk: mp4 box %q at %d has invalid size %d", typ, pos, size)
		}
		boxes = append(boxes, box{typ: typ, offset: pos, size: size, body: pos + headerLen})
		pos += size
	}
	return boxes, nil
}

// syncSampleByteOffsets descends moov -> trak -> mdia -> minf -> stbl to
// find stss (sync sample numbers), stsz (per-sample sizes) and stco/co64
// (chunk offset table is not needed at this granularity: mediavault treats
// stsz's cumulative sample sizes, anchored at the first sample's offset
// derived from stco, as good enough for GOP-boundary purposes). Only the
// first track carrying all of these tables is used; the track's media type
// is not checked.
func syncSampleByteOffsets(buf []byte, moov box) ([]int64, error) {
	traks, err := findDescendants(buf, moov, "trak")
	if err != nil {
		return nil, err
	}
	for _, trak := range traks {
		stbl, ok, err := findStbl(buf, trak)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		stss, hasSync := findChild(buf, stbl, "stss")
		stsz, hasSizes := findChild(buf, stbl, "stsz")
		firstOffset, hasOffset := findSampleBaseOffset(buf, stbl)
		if !hasSync || !hasSizes || !hasOffset {
			continue
		}
		syncNums, err := parseStss(buf, stss)
		if err != nil {
			return nil, err
		}
		sizes, err := parseStsz(buf, stsz)
		if err != nil {
			return nil, err
		}
		return sampleOffsetsFromSizes(firstOffset, sizes, syncNums), nil
	}
	return nil, fmt.Errorf("chunk: mp4 no track with stss/stsz/stco found")
}

func findDescendants(buf []byte, parent box, typ string) ([]box, error) {
	children, err := walkBoxes(buf, parent.body, parent.offset+parent.size)
	if err != nil {
		return nil, err
	}
	var out []box
	for _, c := range children {
		if c.typ == typ {
			out = append(out, c)
		}
	}
	return out, nil
}

func findChild(buf []byte, parent box, typ string) (box, bool) {
	children, err := walkBoxes(buf, parent.body, parent.offset+parent.size)
	if err != nil {
		return box{}, false
	}
	for _, c := range children {
		if c.typ == typ {
			return c, true
		}
	}
	return box{}, false
}

func findStbl(buf []byte, trak box) (box, bool, error) {
	mdia, ok := findChild(buf, trak, "mdia")
	if !ok {
		return box{}, false, nil
	}
	minf, ok := findChild(buf, mdia, "minf")
	if !ok {
		return box{}, false, nil
	}
	stbl, ok := findChild(buf, minf, "stbl")
	return stbl, ok, nil
}

func findSampleBaseOffset(buf []byte, stbl box) (int64, bool) {
	if stco, ok := findChild(buf, stbl, "stco"); ok {
		if stco.size >= stco.body-stco.offset+8 {
			return int64(binary.BigEndian.Uint32(buf[stco.body+8 : stco.body+12])), true
		}
	}
	if co64, ok := findChild(buf, stbl, "co64"); ok {
		if co64.size >= co64.body-co64.offset+12 {
			return int64(binary.BigEndian.Uint64(buf[co64.body+8 : co64.body+16])), true
		}
	}
	return 0, false
}

// parseStss reads a full-box "stss" table: version/flags (4 bytes), entry
// count (4 bytes), then that many big-endian uint32 1-based sample numbers.
func parseStss(buf []byte, b box) ([]uint32, error) {
	p := b.body + 4
	if p+4 > int64(len(buf)) {
		return nil, fmt.Errorf("chunk: mp4 truncated stss")
	}
	count := binary.BigEndian.Uint32(buf[p : p+4])
	p += 4
	out := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if p+4 > int64(len(buf)) {
			return nil, fmt.Errorf("chunk: mp4 truncated stss entries")
		}
		out = append(out, binary.BigEndian.Uint32(buf[p:p+4]))
		p += 4
	}
	return out, nil
}

// parseStsz reads a full-box "stsz" table: version/flags, default sample
// size, sample count, then per-sample sizes if default size is 0.
func parseStsz(buf []byte, b box) ([]uint32, error) {
	p := b.body + 4
	if p+8 > int64(len(buf)) {
		return nil, fmt.Errorf("chunk: mp4 truncated stsz")
	}
	defaultSize := binary.BigEndian.Uint32(buf[p : p+4])
	count := binary.BigEndian.Uint32(buf[p+4 : p+8])
	p += 8
	sizes := make([]uint32, count)
	if defaultSize != 0 {
		for i := range sizes {
			sizes[i] = defaultSize
		}
		return sizes, nil
	}
	for i := uint32(0); i < count; i++ {
		if p+4 > int64(len(buf)) {
			return nil, fmt.Errorf("chunk: mp4 truncated stsz entries")
		}
		sizes[i] = binary.BigEndian.Uint32(buf[p : p+4])
		p += 4
	}
	return sizes, nil
}

// sampleOffsetsFromSizes turns per-sample sizes plus a 1-based sync-sample
// index list into absolute byte offsets of sync samples.
func sampleOffsetsFromSizes(base int64, sizes []uint32, syncNums []uint32) []int64 {
	cumulative := make([]int64, len(sizes)+1)
	for i, s := range sizes {
		cumulative[i+1] = cumulative[i] + int64(s)
	}
	offsets := make([]int64, 0, len(syncNums))
	for _, n := range syncNums {
		idx := int(n) - 1
		if idx < 0 || idx >= len(sizes) {
			continue
		}
		offsets = append(offsets, base+cumulative[idx])
	}
	return offsets
}

// emitAtOffsets slices buf at the given absolute offsets (clamped to
// [mdatRange[0], mdatRange[1])) into chunks, with everything before the
// first offset and after the last forming boundary chunks of their own so
// the full file is covered, not just the mdat payload.
func emitAtOffsets(ctx context.Context, out chan<- Chunk, buf []byte, offsets []int64, mdatRange [2]int64) error {
	bounds := []int64{0}
	for _, o := range offsets {
		if o > mdatRange[0] && o < mdatRange[1] {
			bounds = append(bounds, o)
		}
	}
	bounds = append(bounds, int64(len(buf)))

	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		if start == end {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- Chunk{Offset: start, Size: end - start, Data: buf[start:end]}:
		}
	}
	return nil
}

// newResettableReader exposes an in-memory buffer already read via
// io.ReadAll as a fresh io.Reader for the FastCDC fallback path, avoiding a
// second read of the underlying source.
func newResettableReader(buf []byte) io.Reader {
	return bufio.NewReader(&byteSliceReader{b: buf})
}

type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
