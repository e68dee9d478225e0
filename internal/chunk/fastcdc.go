package chunk

import (
	"context"
	"fmt"
	"io"

	fastcdc "github.com/jotfs/fastcdc-go"
)

// Params controls FastCDC's target, minimum and maximum chunk sizes. Content
// boundaries are chosen by a rolling hash so edits only perturb the chunks
// touching the edit, not everything downstream of it.
type Params struct {
	Min     int
	Average int
	Max     int
}

// SmallParams targets files under 10MB (spec §4.2 size tier 1): small
// average chunk size keeps delta granularity fine for small media.
var SmallParams = Params{Min: 1 << 12, Average: 1 << 14, Max: 1 << 16} // 4K/16K/64K

// DefaultParams targets the 10MB-100MB tier: the FastCDC reference average.
var DefaultParams = Params{Min: 1 << 15, Average: 1 << 17, Max: 1 << 19} // 32K/128K/512K

// StreamParams targets files over 100MB (spec §4.2 size tier 3): larger
// chunks bound the manifest size for very large assets.
var StreamParams = Params{Min: 1 << 19, Average: 1 << 21, Max: 1 << 23} // 512K/2M/8M

// SelectParams picks a preset by source size, per spec §4.2's size-tiered
// chunking table.
func SelectParams(size int64) Params {
	switch {
	case size < 10<<20:
		return SmallParams
	case size < 100<<20:
		return DefaultParams
	default:
		return StreamParams
	}
}

// FastCDC is the generic content-defined chunker, used directly for opaque
// formats and as the fallback for every format-aware chunker when format
// parsing fails (spec §4.2: "chunkers MUST fall back to FastCDC on any
// parse error rather than failing the operation").
type FastCDC struct {
	params Params
}

// NewFastCDC builds a FastCDC chunker with an explicit parameter set. Use
// SelectParams to derive one from source size.
func NewFastCDC(p Params) *FastCDC {
	return &FastCDC{params: p}
}

func (f *FastCDC) newLibChunker(r io.Reader) (*fastcdc.Chunker, error) {
	return fastcdc.NewChunker(r, fastcdc.Options{
		MinSize:     f.params.Min,
		AverageSize: f.params.Average,
		MaxSize:     f.params.Max,
	})
}

// Chunk implements Chunker.
func (f *FastCDC) Chunk(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		c, err := f.newLibChunker(r)
		if err != nil {
			errc <- fmt.Errorf("chunk: fastcdc init: %w", err)
			return
		}

		var offset int64
		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			default:
			}

			fc, err := c.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- fmt.Errorf("chunk: fastcdc read: %w", err)
				return
			}

			data := make([]byte, len(fc.Data))
			copy(data, fc.Data)

			select {
			case out <- Chunk{Offset: offset, Size: int64(len(data)), Data: data}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
			offset += int64(len(data))
		}
	}()

	return out, errc
}

// ChunkAll implements Chunker.
func (f *FastCDC) ChunkAll(ctx context.Context, r io.Reader) ([]Chunk, error) {
	return chunkAllViaChannel(ctx, f, r)
}
