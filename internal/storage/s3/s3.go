// Package s3 implements storage.Backend against any S3-compatible object
// store, using path-style addressing and multipart upload for objects over
// MultipartThreshold (spec §4.1: "S3-compatible (multipart upload for large
// objects; path-style addressing)").
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	mvstorage "github.com/mediavault/mediavault-core/internal/storage"
)

// MultipartThreshold is the size above which Put switches from a single
// PutObject call to the multipart upload flow.
const MultipartThreshold = 64 << 20 // 64MB

// PartSize is the size of each part in a multipart upload, except possibly
// the last.
const PartSize = 16 << 20 // 16MB

// Config configures the S3-compatible backend. Endpoint and PathStyle
// support non-AWS S3-compatible stores (MinIO, Ceph RGW, R2).
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Storage implements storage.Backend against an S3-compatible bucket.
type Storage struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewStorage builds a Storage from cfg, using static credentials when
// provided and the default AWS credential chain otherwise.
func NewStorage(ctx context.Context, cfg Config, logger zerolog.Logger) (*Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &Storage{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if size > MultipartThreshold {
		return s.putMultipart(ctx, key, r, size)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "s3.Put", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "s3.Put", err)
	}
	return nil
}

// putMultipart streams r in PartSize chunks through CreateMultipartUpload /
// UploadPart / CompleteMultipartUpload, tracking completed parts in memory
// for the lifetime of this call and aborting the upload on any part or
// completion failure. The call is synchronous end to end, so there is no
// cross-process session to persist: resumability for an interrupted
// transfer is handled one layer up, by internal/transfer's content-addressed
// object retry rather than by resuming a single backend's in-flight upload.
func (s *Storage) putMultipart(ctx context.Context, key string, r io.Reader, size int64) error {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "s3.putMultipart.create", err)
	}
	uploadID := created.UploadId

	var parts []types.CompletedPart
	buf := make([]byte, PartSize)
	partNumber := int32(1)

	abort := func() {
		_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket: aws.String(s.bucket), Key: aws.String(key), UploadId: uploadID,
		})
	}

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(s.bucket),
				Key:        aws.String(key),
				UploadId:   uploadID,
				PartNumber: aws.Int32(partNumber),
				Body:       bytes.NewReader(buf[:n]),
			})
			if err != nil {
				abort()
				return mvstorage.NewError(mvstorage.KindTransient, "s3.putMultipart.uploadPart", err)
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
			partNumber++
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			abort()
			return mvstorage.NewError(mvstorage.KindTransient, "s3.putMultipart.read", readErr)
		}
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return mvstorage.NewError(mvstorage.KindTransient, "s3.putMultipart.complete", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, classifyS3Error(err, "s3.Get")
	}
	return out.Body, nil
}

func (s *Storage) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	rng := fmt.Sprintf("bytes=%d-", offset)
	if length > 0 {
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(key), Range: aws.String(rng),
	})
	if err != nil {
		return nil, classifyS3Error(err, "s3.GetRange")
	}
	return out.Body, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, mvstorage.NewError(mvstorage.KindTransient, "s3.Exists", err)
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindTransient, "s3.Delete", err)
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket), Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mvstorage.NewError(mvstorage.KindTransient, "s3.List", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return mvstorage.NewError(mvstorage.KindFatal, "s3.HealthCheck", err)
	}
	return nil
}

func classifyS3Error(err error, op string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return mvstorage.ErrNotFound
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return mvstorage.ErrNotFound
	}
	return mvstorage.NewError(mvstorage.KindTransient, op, err)
}

var _ mvstorage.Backend = (*Storage)(nil)
