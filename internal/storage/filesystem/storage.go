// Package filesystem implements storage.Backend on the local filesystem,
// using sharded locking for high-concurrency blob access and atomic
// temp-file-then-rename writes.
package filesystem

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediavault/mediavault-core/internal/storage"
)

const shardCount = 256

// shardedLock gives fine-grained locking over 256 shards chosen by the
// FNV-32a hash of the whole key, rather than one global mutex, so
// concurrent operations on different keys contend only when their keys
// hash to the same shard.
type shardedLock struct {
	locks [shardCount]sync.RWMutex
}

func (sl *shardedLock) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (sl *shardedLock) Lock(key string)    { sl.locks[sl.shardIndex(key)].Lock() }
func (sl *shardedLock) Unlock(key string)  { sl.locks[sl.shardIndex(key)].Unlock() }
func (sl *shardedLock) RLock(key string)   { sl.locks[sl.shardIndex(key)].RLock() }
func (sl *shardedLock) RUnlock(key string) { sl.locks[sl.shardIndex(key)].RUnlock() }

// Storage implements storage.Backend over a local directory tree.
type Storage struct {
	dataDir string
	tempDir string
	logger  zerolog.Logger
	shards  shardedLock
	tempMu  sync.Mutex
}

// Config holds the two directories the backend needs.
type Config struct {
	DataDir string
	TempDir string
}

// NewStorage creates a filesystem-backed Backend, creating DataDir and
// TempDir if they don't exist.
func NewStorage(cfg Config, logger zerolog.Logger) (*Storage, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create temp dir: %w", err)
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("filesystem: abs data dir: %w", err)
	}
	tempDir, err := filepath.Abs(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("filesystem: abs temp dir: %w", err)
	}

	logger.Info().Str("data_dir", dataDir).Str("temp_dir", tempDir).Msg("filesystem backend initialized")

	return &Storage{dataDir: dataDir, tempDir: tempDir, logger: logger}, nil
}

func (s *Storage) fullPath(key string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(key))
}

// Put implements storage.Backend. It writes to a unique temp file first,
// then atomically renames into place, so a concurrent Get never observes a
// partially written object, and a repeat Put of the same key is a cheap
// overwrite (objects are content-addressed upstream, so bytes never
// change). Put does not check whether key already exists; it always
// writes and renames.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	s.tempMu.Lock()
	tempFile, err := os.CreateTemp(s.tempDir, "upload-*")
	s.tempMu.Unlock()
	if err != nil {
		return storage.NewError(storage.KindFatal, "filesystem.Put", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(tempFile, r)
	if err != nil {
		_ = tempFile.Close()
		return storage.NewError(storage.KindTransient, "filesystem.Put", err)
	}
	if err := tempFile.Close(); err != nil {
		return storage.NewError(storage.KindTransient, "filesystem.Put", err)
	}
	if size > 0 && written != size {
		return storage.NewError(storage.KindCorrupt, "filesystem.Put",
			fmt.Errorf("size mismatch: expected %d, got %d", size, written))
	}

	full := s.fullPath(key)
	s.shards.Lock(key)
	defer s.shards.Unlock(key)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return storage.NewError(storage.KindFatal, "filesystem.Put", err)
	}

	if err := os.Rename(tempPath, full); err != nil {
		if err := copyFile(tempPath, full); err != nil {
			return storage.NewError(storage.KindTransient, "filesystem.Put", err)
		}
		_ = os.Remove(tempPath)
	}

	success = true
	s.logger.Debug().Str("key", key).Int64("size", written).Msg("blob stored")
	return nil
}

// Get implements storage.Backend.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.shards.RLock(key)
	defer s.shards.RUnlock(key)

	f, err := os.Open(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.NewError(storage.KindTransient, "filesystem.Get", err)
	}
	return f, nil
}

// GetRange implements storage.Backend.
func (s *Storage) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	s.shards.RLock(key)
	defer s.shards.RUnlock(key)

	f, err := os.Open(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.NewError(storage.KindTransient, "filesystem.GetRange", err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, storage.NewError(storage.KindFatal, "filesystem.GetRange", err)
	}
	if length > 0 {
		return &limitedReadCloser{reader: io.LimitReader(f, length), closer: f}, nil
	}
	return f, nil
}

// Delete implements storage.Backend. Deleting an absent key is success.
func (s *Storage) Delete(ctx context.Context, key string) error {
	s.shards.Lock(key)
	defer s.shards.Unlock(key)

	full := s.fullPath(key)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storage.NewError(storage.KindTransient, "filesystem.Delete", err)
	}
	s.cleanupEmptyDirs(filepath.Dir(full))
	return nil
}

// Exists implements storage.Backend.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	s.shards.RLock(key)
	defer s.shards.RUnlock(key)

	_, err := os.Stat(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, storage.NewError(storage.KindTransient, "filesystem.Exists", err)
	}
	return true, nil
}

// List implements storage.Backend, walking the subtree rooted at prefix.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.fullPath(prefix)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, storage.NewError(storage.KindTransient, "filesystem.List", err)
	}
	return keys, nil
}

// HealthCheck implements storage.Backend.
func (s *Storage) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.dataDir); err != nil {
		return storage.NewError(storage.KindFatal, "filesystem.HealthCheck", err)
	}
	testPath := filepath.Join(s.tempDir, ".health-check")
	if err := os.WriteFile(testPath, []byte("ok"), 0o644); err != nil {
		return storage.NewError(storage.KindFatal, "filesystem.HealthCheck", err)
	}
	return os.Remove(testPath)
}

func (s *Storage) cleanupEmptyDirs(dir string) {
	for dir != s.dataDir && dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}

type limitedReadCloser struct {
	reader io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.reader.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.closer.Close() }

var _ storage.Backend = (*Storage)(nil)
