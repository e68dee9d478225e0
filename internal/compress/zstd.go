package compress

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// encoder/decoder pools mirror the pack-grounded pattern of reusing zstd
// encoders and decoders across calls instead of paying setup cost per
// object (see other_examples' HyperPack: sync.Pool of zstd.Writer/Reader).
var (
	zstdEncoderPools = map[Level]*sync.Pool{
		LevelDefault: newZstdEncoderPool(zstd.SpeedDefault),
		LevelBest:    newZstdEncoderPool(zstd.SpeedBestCompression),
	}
	zstdDecoderPool = &sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}
)

func newZstdEncoderPool(level zstd.EncoderLevel) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
			return enc
		},
	}
}

func zstdCompressInto(out *bytes.Buffer, src []byte, level Level) error {
	pool := zstdEncoderPools[level]
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)

	enc.Reset(out)
	if _, err := enc.Write(src); err != nil {
		return err
	}
	return enc.Close()
}

func zstdDecompress(src []byte) ([]byte, error) {
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return io.ReadAll(dec)
}

// zstdDecompressReader returns a streaming decompressor. The decoder is
// borrowed from the pool and returned to it on Close.
func zstdDecompressReader(r io.Reader) (io.ReadCloser, error) {
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		zstdDecoderPool.Put(dec)
		return nil, err
	}
	return &pooledZstdReader{dec: dec}, nil
}

type pooledZstdReader struct {
	dec *zstd.Decoder
}

func (p *pooledZstdReader) Read(buf []byte) (int, error) {
	return p.dec.Read(buf)
}

func (p *pooledZstdReader) Close() error {
	zstdDecoderPool.Put(p.dec)
	return nil
}
