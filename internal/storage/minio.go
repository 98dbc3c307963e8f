package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	accessKey       string
	secretAccessKey string
	sessionToken    string
	region          string
	useSSL          bool
}

var _ ObjectStore = (*MinioStore)(nil)

// MinioStore is an S3-compatible ObjectStore.
type MinioStore struct {
	client *minio.Client
}

func NewMinioStore(opts ...MinioOpts) (*MinioStore, error) {
	cfg := &minioConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if strings.TrimSpace(cfg.endpoint) == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, cfg.sessionToken),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return &MinioStore{client: client}, nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeBinary
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.getError(bucket, key, err)
	}
	defer object.Close()

	// GetObject is lazy; Stat surfaces a missing key before reading.
	if _, err := object.Stat(); err != nil {
		return nil, s.getError(bucket, key, err)
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.getError(bucket, key, err)
	}
	return data, nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)
	for info := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, info.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          info.Key,
			LastModified: info.LastModified,
			Size:         info.Size,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// BucketExists reports an error unless bucket is reachable and present.
func (s *MinioStore) BucketExists(ctx context.Context, bucket string) error {
	ok, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %s", domain.ErrNotFound, bucket)
	}
	return nil
}

func (s *MinioStore) getError(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: object %s/%s", domain.ErrNotFound, bucket, key)
	}
	return fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSessionToken(token string) MinioOpts {
	return func(c *minioConfig) {
		c.sessionToken = token
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
