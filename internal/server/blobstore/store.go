// Package blobstore stores file contents in an S3 compatible object store
// (AWS S3 or MinIO) and streams them back in bounded chunks.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/filekeeper/internal/common"
)

// DefaultChunkSize is used when Config.ChunkSize is not set.
const DefaultChunkSize = 8 * 1024 * 1024

// API is the subset of *s3.Client used by Store.
type API interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by Store.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config describes the object store connection.
type Config struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the AWS endpoint, e.g. http://minio:9000.
	Endpoint  string
	Bucket    string
	ChunkSize int
}

// StorageObject is one stored object version as reported by List.
type StorageObject struct {
	Name         string    `json:"name"`
	VersionID    string    `json:"version_id"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
}

// Store reads and writes objects. Methods taking a bucket fall back to the
// configured default bucket when it is empty.
type Store struct {
	client    API
	presigner Presigner
	uploader  *manager.Uploader
	region    string
	bucket    string
	chunkSize int

	ensured sync.Map
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// New builds an S3 client with static credentials and path-style addressing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return NewWithClient(client, s3.NewPresignClient(client), cfg), nil
}

// NewWithClient builds a Store over already constructed clients.
func NewWithClient(client API, presigner Presigner, cfg Config) *Store {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	partSize := int64(chunk)
	if partSize < manager.MinUploadPartSize {
		partSize = manager.MinUploadPartSize
	}
	return &Store{
		client:    client,
		presigner: presigner,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		region:    cfg.Region,
		bucket:    cfg.Bucket,
		chunkSize: chunk,
	}
}

func (s *Store) bucketOr(bucket string) string {
	if bucket == "" {
		return s.bucket
	}
	return bucket
}

// Exists reports whether the bucket is reachable.
func (s *Store) Exists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketOr(bucket))})
	if err == nil {
		return true, nil
	}
	err = classify("head bucket", err)
	var se *StoreError
	if errors.As(err, &se) && se.Kind == KindNotFound {
		return false, nil
	}
	return false, err
}

// Create creates the bucket. A bucket already owned by the caller is not an error.
func (s *Store) Create(ctx context.Context, bucket string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucketOr(bucket))}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err := s.client.CreateBucket(ctx, in)
	if err != nil && errorCode(err) != "BucketAlreadyOwnedByYou" {
		return classify("create bucket", err)
	}
	return nil
}

// EnsureBucket creates the bucket if missing. Success is remembered per bucket.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	bucket = s.bucketOr(bucket)
	if _, ok := s.ensured.Load(bucket); ok {
		return nil
	}
	ok, err := s.Exists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.Create(ctx, bucket); err != nil {
			return err
		}
	}
	s.ensured.Store(bucket, struct{}{})
	return nil
}

// Put writes r under key. A known size up to the chunk size goes out as a
// single PutObject; anything else is streamed as a multipart upload with
// chunk-sized parts, so at most a few parts are held in memory.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) (string, error) {
	bucket = s.bucketOr(bucket)

	if size >= 0 && size <= int64(s.chunkSize) {
		data, err := io.ReadAll(io.LimitReader(r, size+1))
		if err != nil {
			return "", classify("put", err)
		}
		if int64(len(data)) != size {
			return "", fmt.Errorf("%w: payload does not match declared size %d", common.ErrorValidation, size)
		}
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(size),
		})
		if err != nil {
			return "", classify("put", err)
		}
		return key, nil
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", classify("multipart put", err)
	}
	return key, nil
}

// GetStream opens key for reading. Missing objects fail here, before any
// chunk is produced.
func (s *Store) GetStream(ctx context.Context, bucket, key string) (*ChunkStream, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketOr(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get", err)
	}
	return NewChunkStream(out.Body, s.chunkSize, aws.ToInt64(out.ContentLength)), nil
}

// List returns every stored version of every object under prefix, sorted by key.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]StorageObject, error) {
	in := &s3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucketOr(bucket)),
		Prefix: aws.String(prefix),
	}

	var result []StorageObject
	for {
		out, err := s.client.ListObjectVersions(ctx, in)
		if err != nil {
			return nil, classify("list", err)
		}
		for _, v := range out.Versions {
			result = append(result, StorageObject{
				Name:         aws.ToString(v.Key),
				VersionID:    aws.ToString(v.VersionId),
				LastModified: aws.ToTime(v.LastModified),
				Size:         aws.ToInt64(v.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.KeyMarker = out.NextKeyMarker
		in.VersionIdMarker = out.NextVersionIdMarker
	}

	slices.SortStableFunc(result, func(a, b StorageObject) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

// PresignedURL returns a GET URL for key valid for ttl.
func (s *Store) PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketOr(bucket)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classify("presign", err)
	}
	return req.URL, nil
}

// Check probes the store with a bucket listing.
func (s *Store) Check(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return classify("check", err)
	}
	return nil
}
