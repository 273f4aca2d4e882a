package storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	accessKey       string
	secretAccessKey string
	useSSL          bool
	buckets         []string
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type MinioStorage struct {
	cfg    *minioConfig
	client *minio.Client
}

var _ Storage = (*MinioStorage)(nil)

func NewMinioStorage(opts ...MinioOpts) (*MinioStorage, error) {
	cfg := newConfig(opts...)

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}

	return &MinioStorage{cfg: cfg, client: minioClient}, nil
}

// EnsureBuckets creates the configured buckets that do not exist yet.
func (s *MinioStorage) EnsureBuckets(ctx context.Context) error {
	for _, b := range s.cfg.buckets {
		exists, err := s.client.BucketExists(ctx, b)
		if err != nil {
			return errors.Wrapf(err, "checking bucket %s", b)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrapf(err, "creating bucket %s", b)
		}
	}
	return nil
}

func (s *MinioStorage) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrapf(err, "putting %s/%s", bucket, key)
}

func (s *MinioStorage) Get(ctx context.Context, bucket, key string, dst io.Writer) error {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return s.wrap(err, bucket, key)
	}
	defer object.Close()

	objInfo, err := object.Stat()
	if err != nil {
		return s.wrap(err, bucket, key)
	}

	newCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pw := newProgressWriter(newCtx, dst, key, objInfo.Size)

	if _, err = io.Copy(pw, object); err != nil {
		return errors.Wrapf(err, "downloading %s/%s", bucket, key)
	}

	if pw.downloadedBytes != pw.total {
		return errors.Errorf("failed to download %s/%s. expected bytes %d received %d", bucket, key, pw.total, pw.downloadedBytes)
	}

	return nil
}

func (s *MinioStorage) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.wrap(err, bucket, key)
	}
	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

func (s *MinioStorage) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return s.wrap(err, srcBucket, srcKey)
	}
	return nil
}

func (s *MinioStorage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for o := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return nil, errors.Wrapf(o.Err, "listing %s/%s", bucket, prefix)
		}
		objects = append(objects, ObjectInfo{
			Key:          o.Key,
			Size:         o.Size,
			ContentType:  o.ContentType,
			LastModified: o.LastModified,
		})
	}
	return objects, nil
}

func (s *MinioStorage) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	return errors.Wrapf(err, "removing %s/%s", bucket, key)
}

func (s *MinioStorage) Type() string {
	return "minio"
}

func (s *MinioStorage) wrap(err error, bucket, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrapf(ErrObjectNotFound, "%s/%s", bucket, key)
	}
	return errors.Wrapf(err, "%s/%s", bucket, key)
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

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithBuckets(buckets ...string) MinioOpts {
	return func(c *minioConfig) {
		c.buckets = append(c.buckets, buckets...)
	}
}
