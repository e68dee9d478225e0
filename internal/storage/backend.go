package storage

import (
	"context"
	"io"
	"strings"
)

// Backend is the universal storage interface used by everything above the
// object database (spec §4.1). It is polymorphic over {get, get-range, put,
// exists, delete, list-with-prefix, health-check}; every variant
// (filesystem, S3, Azure, GCS, memory) implements exactly this surface and
// nothing more, so the ODB never special-cases a backend.
type Backend interface {
	// Get returns a reader for key, or an ErrNotFound-kind error.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetRange returns a reader for [offset, offset+length) of key. A
	// length of 0 means "to the end of the object".
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Put writes size bytes from r under key. Implementations MUST be
	// atomic: a concurrent Get on key never observes a partial object
	// (spec §4.1: "readers never see a partial object").
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting an absent key is success (idempotent).
	Delete(ctx context.Context, key string) error

	// List returns every key with the given prefix. Order is unspecified
	// unless a particular backend documents otherwise.
	List(ctx context.Context, prefix string) ([]string, error)

	// HealthCheck verifies the backend is reachable and writable.
	HealthCheck(ctx context.Context) error
}

// PathConfig controls how logical keys map onto a backend's own namespace.
// Every backend embeds one so object/manifest/ref keys land in the layout
// spec §3 describes, adapted to that backend's native addressing (a
// filesystem path, an S3 key, a blob name).
type PathConfig struct {
	// ObjectsPrefix is prepended to object keys (e.g. "objects").
	ObjectsPrefix string
	// ManifestsPrefix is prepended to chunk-manifest keys (e.g. "manifests").
	ManifestsPrefix string
	// RefsPrefix is prepended to ref keys (e.g. "refs").
	RefsPrefix string
	// PackPrefix is prepended to pack-file keys (e.g. "pack").
	PackPrefix string
}

// DefaultPathConfig returns the layout named in spec §3's storage-layout
// diagram.
func DefaultPathConfig() PathConfig {
	return PathConfig{
		ObjectsPrefix:   "objects",
		ManifestsPrefix: "manifests",
		RefsPrefix:      "refs",
		PackPrefix:      "pack",
	}
}

// ObjectKey returns the key for an object identified by a 64-hex oid
// string, sharded two hex characters deep (spec §3: "<xx>/<62hex>").
func (c PathConfig) ObjectKey(hexOid string) string {
	if len(hexOid) < 2 {
		return c.ObjectsPrefix + "/" + hexOid
	}
	return c.ObjectsPrefix + "/" + hexOid[:2] + "/" + hexOid[2:]
}

// ManifestKey returns the key for a chunk manifest.
func (c PathConfig) ManifestKey(hexOid string) string {
	return c.ManifestsPrefix + "/" + hexOid + ".bin"
}

// RefKey returns the key for a named ref under refs/heads/<name>, or HEAD
// when name is "HEAD". A full name "refs/heads/<name>" (the form a
// symbolic HEAD carries) maps to the same key as the bare "<name>".
func (c PathConfig) RefKey(name string) string {
	if name == "HEAD" {
		return "HEAD"
	}
	return c.RefsPrefix + "/heads/" + strings.TrimPrefix(name, "refs/heads/")
}

// PackKey returns the key for a pack file's data or index component.
// component is "pack" or "idx".
func (c PathConfig) PackKey(hexOid, component string) string {
	return c.PackPrefix + "/" + hexOid + "." + component
}
