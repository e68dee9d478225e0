// Package manifest stores domain.ChunkManifest records in their own key
// namespace (manifests/<oid>.bin), kept separate from the object database
// proper so a manifest lookup never races or collides with an object
// lookup sharing the same backend.
package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// Store reads and writes ChunkManifest records against a Backend.
type Store struct {
	backend storage.Backend
	paths   storage.PathConfig
}

// NewStore builds a manifest Store over backend.
func NewStore(backend storage.Backend, paths storage.PathConfig) *Store {
	return &Store{backend: backend, paths: paths}
}

// Put stores m under the manifest namespace keyed by id — the oid of the
// blob the manifest describes, not a hash of the manifest's own bytes.
func (s *Store) Put(ctx context.Context, id oid.Oid, m *domain.ChunkManifest) error {
	if !m.Validate() {
		return fmt.Errorf("manifest: chunk entries do not tile total size for %s", id)
	}
	encoded, err := m.Encode()
	if err != nil {
		return fmt.Errorf("manifest: encode %s: %w", id, err)
	}
	key := s.paths.ManifestKey(id.String())
	return s.backend.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)))
}

// Get retrieves and decodes the manifest for id.
func (s *Store) Get(ctx context.Context, id oid.Oid) (*domain.ChunkManifest, error) {
	key := s.paths.ManifestKey(id.String())
	r, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", id, err)
	}
	return domain.DecodeChunkManifest(data)
}

// Exists reports whether a manifest is stored for id.
func (s *Store) Exists(ctx context.Context, id oid.Oid) (bool, error) {
	return s.backend.Exists(ctx, s.paths.ManifestKey(id.String()))
}

// Delete removes the manifest for id, if any.
func (s *Store) Delete(ctx context.Context, id oid.Oid) error {
	return s.backend.Delete(ctx, s.paths.ManifestKey(id.String()))
}
