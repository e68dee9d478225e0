package delta

import (
	"context"
	"hash/fnv"
	"io"
)

// AssetClass groups file types for similarity-threshold purposes, per spec
// §4.4's threshold table.
type AssetClass int

const (
	ClassOther AssetClass = iota
	ClassText
	Class3D
	ClassRawImage
	ClassAudio
)

// Threshold returns the minimum Jaccard overlap estimate required before
// delta encoding is attempted for a given asset class (spec §4.4).
func (c AssetClass) Threshold() float64 {
	switch c {
	case ClassText:
		return 0.70
	case Class3D:
		return 0.75
	case ClassRawImage:
		return 0.85
	case ClassAudio:
		return 0.90
	default:
		return 0.80
	}
}

// ClassifyExtension maps a file extension to an AssetClass for threshold
// lookup.
func ClassifyExtension(ext string) AssetClass {
	switch ext {
	case "txt", "md", "json", "toml", "yaml", "yml", "csv", "go", "py", "js", "ts", "rs", "c", "cpp", "h", "java":
		return ClassText
	case "fbx", "obj":
		return Class3D
	case "psd", "blend", "psb":
		return ClassRawImage
	case "wav", "aiff", "aif":
		return ClassAudio
	default:
		return ClassOther
	}
}

// sampleCount is the number of rolling-hash fingerprints drawn from each
// side of the comparison; large enough to estimate Jaccard overlap within a
// few percentage points on typical media file sizes, small enough to keep
// the probe itself cheap (spec §4.4: "cheap pre-check").
const sampleCount = 64

// windowSize is the rolling-hash window, in bytes, used to generate
// fingerprints.
const windowSize = 48

// Fingerprint samples up to sampleCount evenly-spaced rolling-hash values
// from r, computed over sliding windows of windowSize bytes. It reads the
// entire stream once.
func Fingerprint(ctx context.Context, r io.Reader) ([]uint64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return fingerprintBytes(data), nil
}

func fingerprintBytes(data []byte) []uint64 {
	if len(data) < windowSize {
		h := fnv.New64a()
		h.Write(data)
		return []uint64{h.Sum64()}
	}

	windows := len(data) - windowSize + 1
	step := windows / sampleCount
	if step < 1 {
		step = 1
	}

	var out []uint64
	for start := 0; start < windows && len(out) < sampleCount; start += step {
		h := fnv.New64a()
		h.Write(data[start : start+windowSize])
		out = append(out, h.Sum64())
	}
	return out
}

// JaccardSimilarity estimates the overlap between two fingerprint sets:
// |intersection| / |union|, treating each slice as a set (duplicate values
// collapse).
func JaccardSimilarity(a, b []uint64) float64 {
	setA := toSet(a)
	setB := toSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(vs []uint64) map[uint64]bool {
	m := make(map[uint64]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

// ShouldAttemptDelta runs the similarity probe between base and target and
// reports whether the estimated overlap clears class's threshold.
func ShouldAttemptDelta(ctx context.Context, base, target io.Reader, class AssetClass) (bool, float64, error) {
	baseFp, err := Fingerprint(ctx, base)
	if err != nil {
		return false, 0, err
	}
	targetFp, err := Fingerprint(ctx, target)
	if err != nil {
		return false, 0, err
	}
	sim := JaccardSimilarity(baseFp, targetFp)
	return sim >= class.Threshold(), sim, nil
}
