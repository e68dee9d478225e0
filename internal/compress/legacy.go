package compress

import (
	"compress/zlib"
	"io"
)

// Legacy objects written before mediavault adopted the tagged header are
// raw zlib streams. zlib's 2-byte CMF/FLG header has a fixed structure
// (spec §4.3: "fall back to legacy zlib for pre-upgrade objects") that
// never collides with mediavault's own tag bytes (0x00-0x02), letting the
// reader distinguish old blobs from new ones without a version field.
func looksLikeLegacyZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	cmf, flg := b[0], b[1]
	if cmf&0x0f != 0x08 { // deflate method
		return false
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return false
	}
	return true
}

func legacyZlibDecompress(blob []byte) ([]byte, error) {
	r, err := zlib.NewReader(byteReader(blob))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func legacyZlibReader(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}

func byteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

type sliceReader struct {
	b   []byte
	pos int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += n
	return n, nil
}
