// Package memory implements storage.Backend entirely in process memory, for
// unit tests and for local development without a filesystem or cloud
// credentials.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mediavault/mediavault-core/internal/storage"
)

// Storage is a Backend backed by a map; safe for concurrent use.
type Storage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty in-memory Backend.
func New() *Storage {
	return &Storage{data: make(map[string][]byte)}
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.NewError(storage.KindTransient, "memory.Put", err)
	}
	if size > 0 && int64(len(b)) != size {
		return storage.NewError(storage.KindCorrupt, "memory.Put", io.ErrUnexpectedEOF)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = b
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *Storage) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if offset > int64(len(b)) {
		offset = int64(len(b))
	}
	end := int64(len(b))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(b[offset:end])), nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	return nil
}

var _ storage.Backend = (*Storage)(nil)
