// Package gcs implements storage.Backend against Google Cloud Storage,
// using the client library's resumable writer for objects above
// ResumableThreshold so an upload survives a retried chunk instead of
// restarting from byte zero.
package gcs

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	mvstorage "github.com/mediavault/mediavault-core/internal/storage"
)

// ResumableThreshold is the size above which Put uses a resumable upload
// with an explicit ChunkSize instead of a single buffered write.
const ResumableThreshold = 64 << 20 // 64MB

// ChunkSize is the chunk size used for resumable uploads.
const ChunkSize = 16 << 20 // 16MB

// Config configures the GCS backend.
type Config struct {
	Bucket string
}

// Storage implements storage.Backend against a GCS bucket.
type Storage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	logger zerolog.Logger
}

// NewStorage builds a Storage using application-default credentials.
func NewStorage(ctx context.Context, cfg Config, logger zerolog.Logger) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, mvstorage.NewError(mvstorage.KindFatal, "gcs.NewStorage", err)
	}
	return &Storage{client: client, bucket: client.Bucket(cfg.Bucket), logger: logger}, nil
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	if size > ResumableThreshold {
		w.ChunkSize = ChunkSize
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return mvstorage.NewError(mvstorage.KindTransient, "gcs.Put", err)
	}
	if err := w.Close(); err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "gcs.Put", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(err, "gcs.Get")
	}
	return r, nil
}

func (s *Storage) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		length = -1
	}
	r, err := s.bucket.Object(key).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, classifyGCSError(err, "gcs.GetRange")
	}
	return r, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, mvstorage.NewError(mvstorage.KindTransient, "gcs.Exists", err)
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return mvstorage.NewError(mvstorage.KindTransient, "gcs.Delete", err)
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mvstorage.NewError(mvstorage.KindTransient, "gcs.List", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return mvstorage.NewError(mvstorage.KindFatal, "gcs.HealthCheck", err)
	}
	return nil
}

func classifyGCSError(err error, op string) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return mvstorage.ErrNotFound
	}
	return mvstorage.NewError(mvstorage.KindTransient, op, err)
}

var _ mvstorage.Backend = (*Storage)(nil)
