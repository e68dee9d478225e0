package chunk

import "bytes"

// Format identifies a container format with a dedicated chunker. Unknown
// formats fall back to plain FastCDC.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP4
	FormatWAV
	FormatPSD
)

// String names a Format for logging.
func (f Format) String() string {
	switch f {
	case FormatMP4:
		return "mp4"
	case FormatWAV:
		return "wav"
	case FormatPSD:
		return "psd"
	default:
		return "unknown"
	}
}

var (
	psdMagic = []byte("8BPS")
	wavMagic = []byte("RIFF")
	wavType  = []byte("WAVE")
	ftypBox  = []byte("ftyp")
)

// Detect inspects a filename and the leading bytes of its content to choose
// a Format, per spec §4.2 ("format detection by magic bytes, with extension
// as a tie-breaker"). magic need only contain the first 64 bytes; shorter
// slices degrade to extension-only detection.
func Detect(name string, magic []byte) Format {
	if len(magic) >= 4 && bytes.Equal(magic[:4], psdMagic) {
		return FormatPSD
	}
	if len(magic) >= 12 && bytes.Equal(magic[:4], wavMagic) && bytes.Equal(magic[8:12], wavType) {
		return FormatWAV
	}
	if len(magic) >= 8 && bytes.Equal(magic[4:8], ftypBox) {
		return FormatMP4
	}
	return detectByExtension(name)
}

func detectByExtension(name string) Format {
	switch ext(name) {
	case "mp4", "m4v", "mov":
		return FormatMP4
	case "wav", "wave":
		return FormatWAV
	case "psd", "psb":
		return FormatPSD
	default:
		return FormatUnknown
	}
}

func ext(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return toLower(name[i+1:])
		}
		if name[i] == '/' {
			break
		}
	}
	return ""
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ForFormat returns the chunker appropriate for f, each wrapping fcdc as its
// fallback. Callers that already selected Params via SelectParams pass the
// same Params here so the fallback path uses consistent chunk sizing.
func ForFormat(f Format, p Params) Chunker {
	fcdc := NewFastCDC(p)
	switch f {
	case FormatMP4:
		return &MP4GOPChunker{fallback: fcdc}
	case FormatWAV:
		return &WAVFrameChunker{fallback: fcdc}
	case FormatPSD:
		return &PSDLayerChunker{fallback: fcdc}
	default:
		return fcdc
	}
}
