// Package oid implements the content address used throughout mediavault:
// a 32-byte SHA-256 digest over the canonical uncompressed bytes of an
// object, printed as 64 lowercase hex characters.
package oid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Size is the byte length of an Oid.
const Size = sha256.Size

// Oid is a content address: sha256(canonical_bytes(object)).
type Oid [Size]byte

// Zero is the sentinel empty Oid, used for "no parent" / "no base".
var Zero Oid

// ErrInvalid is returned when a string cannot be parsed as an Oid.
var ErrInvalid = errors.New("oid: invalid identifier")

// ErrAmbiguous is returned by ParsePrefix when more than one candidate
// object matches a short prefix.
var ErrAmbiguous = errors.New("oid: ambiguous prefix")

// MinPrefixLen is the shortest prefix ParsePrefix will accept (spec §3:
// "short prefixes >= 7 chars accepted if unambiguous").
const MinPrefixLen = 7

// Of computes the Oid of b directly.
func Of(b []byte) Oid {
	return Oid(sha256.Sum256(b))
}

// String renders the Oid as 64 lowercase hex characters.
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero reports whether o is the zero value.
func (o Oid) IsZero() bool {
	return o == Zero
}

// Shard returns the first two hex characters, used for the
// objects/<xx>/<62hex> sharded storage layout (spec §3).
func (o Oid) Shard() string {
	return hex.EncodeToString(o[:1])
}

// Parse decodes a full 64-character hex string into an Oid.
func Parse(s string) (Oid, error) {
	if len(s) != Size*2 {
		return Oid{}, fmt.Errorf("%w: %q has length %d, want %d", ErrInvalid, s, len(s), Size*2)
	}
	var o Oid
	n, err := hex.Decode(o[:], []byte(s))
	if err != nil || n != Size {
		return Oid{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return o, nil
}

// PrefixResolver enumerates known object identifiers as hex strings; it is
// satisfied by the object database's backend listing.
type PrefixResolver interface {
	ResolvePrefix(ctx context.Context, prefix string) ([]Oid, error)
}

// ParsePrefix resolves a short hex prefix (>= MinPrefixLen) to a unique Oid
// using resolver. A prefix of full length is parsed directly without
// consulting the resolver.
func ParsePrefix(ctx context.Context, s string, resolver PrefixResolver) (Oid, error) {
	if len(s) == Size*2 {
		return Parse(s)
	}
	if len(s) < MinPrefixLen {
		return Oid{}, fmt.Errorf("%w: prefix %q shorter than %d chars", ErrInvalid, s, MinPrefixLen)
	}
	candidates, err := resolver.ResolvePrefix(ctx, s)
	if err != nil {
		return Oid{}, err
	}
	switch len(candidates) {
	case 0:
		return Oid{}, fmt.Errorf("%w: no object matches prefix %q", ErrInvalid, s)
	case 1:
		return candidates[0], nil
	default:
		return Oid{}, fmt.Errorf("%w: prefix %q matches %d objects", ErrAmbiguous, s, len(candidates))
	}
}

// yieldThreshold is the number of bytes after which Hasher checks for
// context cancellation between writes, per spec §5 ("hashing of large
// files over a size threshold, yielding periodically").
const yieldThreshold = 8 * 1024 * 1024

// Hasher streams bytes through SHA-256, matching the teacher's
// io.TeeReader-while-copying pattern in storage/filesystem/storage.go, but
// exposed as a reusable component so every write path (ODB, chunker,
// delta applier) shares one hashing technique.
type Hasher struct {
	h         io.Writer
	sum       func() [Size]byte
	written   int64
	sinceYield int64
}

// NewHasher creates a Hasher ready to accept Write calls.
func NewHasher() *Hasher {
	hh := sha256.New()
	return &Hasher{
		h: hh,
		sum: func() [Size]byte {
			var out [Size]byte
			copy(out[:], hh.Sum(nil))
			return out
		},
	}
}

// Write implements io.Writer.
func (hs *Hasher) Write(p []byte) (int, error) {
	n, err := hs.h.Write(p)
	hs.written += int64(n)
	hs.sinceYield += int64(n)
	return n, err
}

// Sum returns the Oid of all bytes written so far.
func (hs *Hasher) Sum() Oid {
	return Oid(hs.sum())
}

// Written returns the total number of bytes hashed.
func (hs *Hasher) Written() int64 {
	return hs.written
}

// HashReader computes the Oid of everything read from r, yielding to ctx
// cancellation periodically for large inputs. It also returns the total
// byte count, mirroring the teacher's size-verification step in
// filesystem.Storage.Store.
func HashReader(ctx context.Context, r io.Reader) (Oid, int64, error) {
	hs := NewHasher()
	buf := make([]byte, 1<<20)
	var total int64
	for {
		if total > 0 && total%yieldThreshold == 0 {
			select {
			case <-ctx.Done():
				return Oid{}, 0, ctx.Err()
			default:
			}
		}
		n, err := r.Read(buf)
		if n > 0 {
			hs.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Oid{}, 0, err
		}
	}
	return hs.Sum(), total, nil
}

// Verify reports whether b hashes to want.
func Verify(b []byte, want Oid) bool {
	return bytes.Equal(Of(b)[:], want[:])
}
