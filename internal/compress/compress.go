// Package compress implements self-describing blob compression with a
// per-call strategy selected by detected file type (spec §4.3).
package compress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Strategy names a compression codec.
type Strategy uint8

const (
	// Store writes the payload uncompressed.
	Store Strategy = iota
	// Zstd compresses with zstd at a caller-chosen level.
	Zstd
	// Brotli compresses with brotli at a caller-chosen level.
	Brotli
)

func (s Strategy) String() string {
	switch s {
	case Store:
		return "store"
	case Zstd:
		return "zstd"
	case Brotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// header tags identify the codec used, so a reader never needs side-channel
// metadata to decompress a blob (spec §4.3: "the compressed blob MUST be
// self-describing"). Values 0x00-0x02 are mediavault's own tags; legacy
// zlib blobs are detected structurally (see legacy.go), not by tag, since
// they predate this header and must still be readable.
const (
	tagStore  byte = 0x00
	tagZstd   byte = 0x01
	tagBrotli byte = 0x02
)

// MinSize is the default floor below which blobs are stored uncompressed
// regardless of detected type (spec §4.3).
const MinSize = 1024

// Level selects a compression effort tier. Meaning is codec-specific;
// LevelDefault and LevelBest map onto each codec's own scale in Compress.
type Level int

const (
	LevelDefault Level = iota
	LevelBest
)

// Select chooses a Strategy and Level for a file by extension, per spec
// §4.3's type table. Select consults only the extension, never the
// content's magic bytes, since the table is keyed by extension and the spec
// marks extension authoritative when it disagrees with magic.
func Select(name string) (Strategy, Level) {
	e := extLower(name)
	switch {
	case storeExts[e]:
		return Store, LevelDefault
	case zstdBestExts[e]:
		return Zstd, LevelBest
	case zstdDefaultExts[e]:
		return Zstd, LevelDefault
	case brotliBestExts[e]:
		return Brotli, LevelBest
	default:
		return Zstd, LevelDefault
	}
}

var storeExts = setOf(
	"jpg", "jpeg", "png", "webp", "mp4", "mov", "mkv", "mp3", "flac",
	"zip", "docx", "xlsx", "pdf", "ai", "indd",
)

var zstdBestExts = setOf(
	"psd", "psb", "tiff", "tif", "raw", "obj", "fbx", "glb", "stl", "ply",
)

var zstdDefaultExts = setOf("wav", "aiff", "aif")

var brotliBestExts = setOf(
	"txt", "md", "json", "toml", "yaml", "yml", "csv",
	"go", "py", "js", "ts", "rs", "c", "cpp", "h", "java",
)

func setOf(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

func extLower(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Compress encodes src under the given strategy/level, writing the
// self-describing header followed by the codec's output. Inputs shorter
// than MinSize are stored regardless of the requested strategy.
func Compress(src []byte, strategy Strategy, level Level) ([]byte, error) {
	if len(src) < MinSize {
		strategy = Store
	}

	var out bytes.Buffer
	switch strategy {
	case Store:
		out.WriteByte(tagStore)
		out.Write(src)
	case Zstd:
		out.WriteByte(tagZstd)
		if err := zstdCompressInto(&out, src, level); err != nil {
			return nil, fmt.Errorf("compress: zstd: %w", err)
		}
	case Brotli:
		out.WriteByte(tagBrotli)
		if err := brotliCompressInto(&out, src, level); err != nil {
			return nil, fmt.Errorf("compress: brotli: %w", err)
		}
	default:
		return nil, fmt.Errorf("compress: unknown strategy %d", strategy)
	}
	return out.Bytes(), nil
}

// Decompress reads a self-describing blob produced by Compress (or a
// pre-upgrade legacy zlib blob) and returns the original bytes.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	if looksLikeLegacyZlib(blob) {
		return legacyZlibDecompress(blob)
	}

	tag, body := blob[0], blob[1:]
	switch tag {
	case tagStore:
		return body, nil
	case tagZstd:
		out, err := zstdDecompress(body)
		if err != nil {
			return nil, fmt.Errorf("decompress: zstd: %w", err)
		}
		return out, nil
	case tagBrotli:
		out, err := brotliDecompress(body)
		if err != nil {
			return nil, fmt.Errorf("decompress: brotli: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decompress: unrecognized header tag 0x%02x", tag)
	}
}

// DecompressReader is the streaming counterpart of Decompress, used by the
// object database to avoid buffering large blobs twice.
func DecompressReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if looksLikeLegacyZlib(peek) {
		return legacyZlibReader(br)
	}

	tagBuf := make([]byte, 1)
	if _, err := io.ReadFull(br, tagBuf); err != nil {
		if err == io.EOF {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, err
	}
	switch tagBuf[0] {
	case tagStore:
		return io.NopCloser(br), nil
	case tagZstd:
		return zstdDecompressReader(br)
	case tagBrotli:
		return brotliDecompressReader(br), nil
	default:
		return nil, fmt.Errorf("decompress: unrecognized header tag 0x%02x", tagBuf[0])
	}
}
