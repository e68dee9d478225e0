// Package azure implements storage.Backend against Azure Blob Storage using
// block blobs, staging blocks for large objects and committing them in one
// shot (the same stage/commit split that azblob's own chunkwriting.go does
// internally, here driven explicitly so upload size is unbounded).
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	mvstorage "github.com/mediavault/mediavault-core/internal/storage"
)

// BlockThreshold is the size above which Put stages blocks individually
// instead of doing a single UploadBufferToBlockBlob call.
const BlockThreshold = 64 << 20 // 64MB

// BlockSize is the size of each staged block, except possibly the last.
const BlockSize = 8 << 20 // 8MB

// Config configures the Azure Blob backend.
type Config struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	// Endpoint overrides the default "https://<account>.blob.core.windows.net"
	// host, for Azurite or other emulators.
	Endpoint string
}

// Storage implements storage.Backend against an Azure Blob container.
type Storage struct {
	containerURL azblob.ContainerURL
	logger       zerolog.Logger
}

// NewStorage builds a Storage from cfg using shared-key credentials.
func NewStorage(cfg Config, logger zerolog.Logger) (*Storage, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure: shared key credential: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	containerURLRaw, err := url.Parse(fmt.Sprintf("%s/%s", endpoint, cfg.ContainerName))
	if err != nil {
		return nil, fmt.Errorf("azure: parse container url: %w", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	containerURL := azblob.NewContainerURL(*containerURLRaw, pipeline)

	return &Storage{containerURL: containerURL, logger: logger}, nil
}

func (s *Storage) blockBlobURL(key string) azblob.BlockBlobURL {
	return s.containerURL.NewBlockBlobURL(blobName(key))
}

// blobName maps a storage key to a blob name. Azure blob names use forward
// slashes as a virtual hierarchy delimiter already, so this is the identity
// function; it exists as a seam for future key-mangling needs.
func blobName(key string) string {
	return key
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if size > BlockThreshold {
		return s.putStaged(ctx, key, r)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "azure.Put", err)
	}
	_, err = s.blockBlobURL(key).Upload(ctx, bytes.NewReader(body),
		azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{},
		azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "azure.Put", err)
	}
	return nil
}

// putStaged stages blocks of BlockSize bytes via StageBlock, then commits
// the full block list in one CommitBlockList call.
func (s *Storage) putStaged(ctx context.Context, key string, r io.Reader) error {
	blockBlobURL := s.blockBlobURL(key)
	gen := newBlockIDGen()

	var blockIDs []string
	buf := make([]byte, BlockSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			id := gen.next()
			_, err := blockBlobURL.StageBlock(ctx, id, bytes.NewReader(buf[:n]),
				azblob.LeaseAccessConditions{}, nil, azblob.ClientProvidedKeyOptions{})
			if err != nil {
				return mvstorage.NewError(mvstorage.KindTransient, "azure.putStaged.stage", err)
			}
			blockIDs = append(blockIDs, id)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return mvstorage.NewError(mvstorage.KindTransient, "azure.putStaged.read", readErr)
		}
	}

	_, err := blockBlobURL.CommitBlockList(ctx, blockIDs,
		azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{},
		azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "azure.putStaged.commit", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.blockBlobURL(key).Download(ctx, 0, azblob.CountToEnd,
		azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, classifyAzureError(err, "azure.Get")
	}
	return resp.Body(azblob.RetryReaderOptions{}), nil
}

func (s *Storage) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	count := int64(azblob.CountToEnd)
	if length > 0 {
		count = length
	}
	resp, err := s.blockBlobURL(key).Download(ctx, offset, count,
		azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, classifyAzureError(err, "azure.GetRange")
	}
	return resp.Body(azblob.RetryReaderOptions{}), nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.blockBlobURL(key).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		var stgErr azblob.StorageError
		if errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return false, nil
		}
		return false, mvstorage.NewError(mvstorage.KindTransient, "azure.Exists", err)
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.blockBlobURL(key).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	if err != nil {
		var stgErr azblob.StorageError
		if errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return nil
		}
		return mvstorage.NewError(mvstorage.KindTransient, "azure.Delete", err)
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := s.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, mvstorage.NewError(mvstorage.KindTransient, "azure.List", err)
		}
		for _, item := range resp.Segment.BlobItems {
			keys = append(keys, item.Name)
		}
		marker = resp.NextMarker
	}
	return keys, nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	_, err := s.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindFatal, "azure.HealthCheck", err)
	}
	return nil
}

func classifyAzureError(err error, op string) error {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
		return mvstorage.ErrNotFound
	}
	return mvstorage.NewError(mvstorage.KindTransient, op, err)
}

// blockIDGen produces unique, equal-length base64 block IDs
// from a UUID prefix plus an incrementing counter, the same scheme
// azblob's own chunkwriting uses internally to keep blocks ordered within
// one upload.
type blockIDGen struct {
	prefix [16]byte
	num    uint32
}

func newBlockIDGen() *blockIDGen {
	u := uuid.New()
	g := &blockIDGen{}
	copy(g.prefix[:], u[:])
	return g
}

func (g *blockIDGen) next() string {
	buf := make([]byte, 20)
	copy(buf, g.prefix[:])
	binary.BigEndian.PutUint32(buf[16:], g.num)
	g.num++
	return base64.StdEncoding.EncodeToString(buf)
}

var _ mvstorage.Backend = (*Storage)(nil)
