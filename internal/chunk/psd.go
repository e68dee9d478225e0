package chunk

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// PSDLayerChunker splits a Photoshop document at layer boundaries within the
// "Layer and Mask Information" section, so editing one layer's pixels only
// perturbs that layer's chunk. Everything outside the layer channel data
// (header, color mode data, image resources, merged image data) is kept as
// surrounding chunks. Falls back to FastCDC on any parse error, including
// PSB (big) documents, which this chunker does not attempt to parse.
type PSDLayerChunker struct {
	fallback *FastCDC
}

func (p *PSDLayerChunker) Chunk(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errc := make(chan error, 1)

	buf, err := io.ReadAll(r)
	if err != nil {
		close(out)
		errc <- err
		close(errc)
		return out, errc
	}

	bounds, ferr := p.layerBounds(buf)
	if ferr != nil || len(bounds) < 2 {
		return p.fallback.Chunk(ctx, newResettableReader(buf))
	}

	go func() {
		defer close(out)
		defer close(errc)
		for i := 0; i < len(bounds)-1; i++ {
			start, end := bounds[i], bounds[i+1]
			if start == end {
				continue
			}
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case out <- Chunk{Offset: start, Size: end - start, Data: buf[start:end]}:
			}
		}
	}()
	return out, errc
}

func (p *PSDLayerChunker) ChunkAll(ctx context.Context, r io.Reader) ([]Chunk, error) {
	return chunkAllViaChannel(ctx, p, r)
}

// layerBounds returns split points covering the whole file: the file header
// through the start of layer channel data, one boundary per layer's channel
// data, and the tail (merged image data) to EOF.
func (p *PSDLayerChunker) layerBounds(buf []byte) ([]int64, error) {
	if len(buf) < 26 || string(buf[0:4]) != "8BPS" {
		return nil, fmt.Errorf("chunk: not a PSD file")
	}
	version := binary.BigEndian.Uint16(buf[4:6])
	if version != 1 {
		return nil, fmt.Errorf("chunk: unsupported PSD version %d", version)
	}

	pos := int64(26)
	pos, err := skipLengthPrefixedSection(buf, pos) // color mode data
	if err != nil {
		return nil, err
	}
	pos, err = skipLengthPrefixedSection(buf, pos) // image resources
	if err != nil {
		return nil, err
	}

	if pos+4 > int64(len(buf)) {
		return nil, fmt.Errorf("chunk: psd truncated before layer section")
	}
	layerMaskLen := int64(binary.BigEndian.Uint32(buf[pos : pos+4]))
	layerMaskStart := pos + 4
	layerMaskEnd := layerMaskStart + layerMaskLen
	if layerMaskEnd > int64(len(buf)) {
		return nil, fmt.Errorf("chunk: psd layer/mask section overruns file")
	}

	if layerMaskLen < 4 {
		// No layers (flattened document): one chunk for everything but the
		// merged image data tail.
		return []int64{0, layerMaskEnd, int64(len(buf))}, nil
	}

	layerInfoLen := int64(binary.BigEndian.Uint32(buf[layerMaskStart : layerMaskStart+4]))
	layerInfoStart := layerMaskStart + 4
	_ = layerInfoLen

	if layerInfoStart+2 > int64(len(buf)) {
		return nil, fmt.Errorf("chunk: psd truncated layer info")
	}
	layerCount := int16(binary.BigEndian.Uint16(buf[layerInfoStart : layerInfoStart+2]))
	if layerCount < 0 {
		layerCount = -layerCount // negative means first alpha channel contains transparency data
	}

	cursor := layerInfoStart + 2
	channelDataSizes := make([]int64, 0, layerCount)
	for i := int16(0); i < layerCount; i++ {
		size, next, err := parseLayerRecord(buf, cursor)
		if err != nil {
			return nil, err
		}
		channelDataSizes = append(channelDataSizes, size)
		cursor = next
	}

	bounds := []int64{0, cursor}
	for _, size := range channelDataSizes {
		next := bounds[len(bounds)-1] + size
		if next > int64(len(buf)) {
			return nil, fmt.Errorf("chunk: psd layer channel data overruns file")
		}
		bounds = append(bounds, next)
	}
	if bounds[len(bounds)-1] != int64(len(buf)) {
		bounds = append(bounds, int64(len(buf)))
	}
	return bounds, nil
}

// parseLayerRecord reads one layer record starting at pos and returns the
// total byte size of that layer's channel image data (found later, after
// all layer records) plus the offset of the next layer record.
func parseLayerRecord(buf []byte, pos int64) (channelDataSize int64, next int64, err error) {
	if pos+18 > int64(len(buf)) {
		return 0, 0, fmt.Errorf("chunk: psd truncated layer record")
	}
	// top, left, bottom, right (4x4 bytes), then channel count (2 bytes).
	numChannels := binary.BigEndian.Uint16(buf[pos+16 : pos+18])
	cursor := pos + 18

	var total int64
	for c := uint16(0); c < numChannels; c++ {
		if cursor+6 > int64(len(buf)) {
			return 0, 0, fmt.Errorf("chunk: psd truncated channel info")
		}
		length := int64(binary.BigEndian.Uint32(buf[cursor+2 : cursor+6]))
		total += length
		cursor += 6
	}

	if cursor+12 > int64(len(buf)) {
		return 0, 0, fmt.Errorf("chunk: psd truncated blend info")
	}
	// blend signature(4) + blend key(4) + opacity(1) + clipping(1) + flags(1) + filler(1)
	cursor += 12

	if cursor+4 > int64(len(buf)) {
		return 0, 0, fmt.Errorf("chunk: psd truncated extra data length")
	}
	extraLen := int64(binary.BigEndian.Uint32(buf[cursor : cursor+4]))
	cursor += 4 + extraLen

	return total, cursor, nil
}

func skipLengthPrefixedSection(buf []byte, pos int64) (int64, error) {
	if pos+4 > int64(len(buf)) {
		return 0, fmt.Errorf("chunk: psd truncated section length at %d", pos)
	}
	length := int64(binary.BigEndian.Uint32(buf[pos : pos+4]))
	end := pos + 4 + length
	if end > int64(len(buf)) {
		return 0, fmt.Errorf("chunk: psd section at %d overruns file", pos)
	}
	return end, nil
}
