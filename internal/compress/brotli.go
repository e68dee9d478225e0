package compress

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

func brotliLevel(level Level) int {
	switch level {
	case LevelBest:
		return brotli.BestCompression
	default:
		return brotli.DefaultCompression
	}
}

func brotliCompressInto(out *bytes.Buffer, src []byte, level Level) error {
	w := brotli.NewWriterLevel(out, brotliLevel(level))
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func brotliDecompress(src []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(src)))
}

func brotliDecompressReader(r io.Reader) io.ReadCloser {
	return io.NopCloser(brotli.NewReader(r))
}
