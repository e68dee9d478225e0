package chunk

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// WAVFrameChunker splits a RIFF/WAVE file's "data" payload on sample-frame
// boundaries (a multiple of the format's block-align), so chunk edges never
// fall mid-sample — any edit realigns at the next frame rather than
// corrupting the rolling-hash search window with interleaved channel bytes.
// Falls back to FastCDC on any RIFF parse error.
type WAVFrameChunker struct {
	fallback *FastCDC
	// FrameGroup is how many frames form one chunk; 0 selects a default
	// derived from the fallback's average chunk size and blockAlign.
	FrameGroup int
}

func (w *WAVFrameChunker) Chunk(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errc := make(chan error, 1)

	buf, err := io.ReadAll(r)
	if err != nil {
		close(out)
		errc <- err
		close(errc)
		return out, errc
	}

	dataStart, dataEnd, blockAlign, ferr := w.parseRIFF(buf)
	if ferr != nil || blockAlign == 0 {
		return w.fallback.Chunk(ctx, newResettableReader(buf))
	}

	go func() {
		defer close(out)
		defer close(errc)
		if err := w.emitFrameChunks(ctx, out, buf, dataStart, dataEnd, blockAlign); err != nil {
			errc <- err
		}
	}()
	return out, errc
}

func (w *WAVFrameChunker) ChunkAll(ctx context.Context, r io.Reader) ([]Chunk, error) {
	return chunkAllViaChannel(ctx, w, r)
}

// parseRIFF walks RIFF chunks looking for "fmt " (to read blockAlign) and
// "data" (the sample payload range). Returns the byte range of data and the
// format's block alignment in bytes.
func (w *WAVFrameChunker) parseRIFF(buf []byte) (dataStart, dataEnd int64, blockAlign int, err error) {
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return 0, 0, 0, fmt.Errorf("chunk: not a RIFF/WAVE file")
	}

	pos := int64(12)
	for pos+8 <= int64(len(buf)) {
		id := string(buf[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		body := pos + 8
		if body+size > int64(len(buf)) {
			return 0, 0, 0, fmt.Errorf("chunk: wav chunk %q overruns file", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, 0, 0, fmt.Errorf("chunk: wav fmt chunk too short")
			}
			blockAlign = int(binary.LittleEndian.Uint16(buf[body+12 : body+14]))
		case "data":
			dataStart, dataEnd = body, body+size
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if dataStart == 0 && dataEnd == 0 {
		return 0, 0, 0, fmt.Errorf("chunk: wav missing data chunk")
	}
	return dataStart, dataEnd, blockAlign, nil
}

func (w *WAVFrameChunker) emitFrameChunks(ctx context.Context, out chan<- Chunk, buf []byte, dataStart, dataEnd int64, blockAlign int) error {
	frameGroup := w.FrameGroup
	if frameGroup <= 0 {
		target := w.fallback.params.Average
		frameGroup = target / blockAlign
		if frameGroup < 1 {
			frameGroup = 1
		}
	}
	groupBytes := int64(frameGroup * blockAlign)
	if groupBytes <= 0 {
		return fmt.Errorf("chunk: wav invalid group size")
	}

	if err := emitRange(ctx, out, buf, 0, dataStart); err != nil {
		return err
	}
	for pos := dataStart; pos < dataEnd; pos += groupBytes {
		end := pos + groupBytes
		if end > dataEnd {
			end = dataEnd
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- Chunk{Offset: pos, Size: end - pos, Data: buf[pos:end]}:
		}
	}
	return emitRange(ctx, out, buf, dataEnd, int64(len(buf)))
}

func emitRange(ctx context.Context, out chan<- Chunk, buf []byte, start, end int64) error {
	if start >= end {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- Chunk{Offset: start, Size: end - start, Data: buf[start:end]}:
	}
	return nil
}
