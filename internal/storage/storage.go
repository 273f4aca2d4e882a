package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Storage is the blob store holding release files, content and data sets.
type Storage interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string, dst io.Writer) error
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	Type() string
}

// CopyPrefix copies every object under srcPrefix to the same relative key
// under dstPrefix and returns the number of objects copied.
func CopyPrefix(ctx context.Context, s Storage, bucket, srcPrefix, dstPrefix string) (int, error) {
	objects, err := s.List(ctx, bucket, srcPrefix)
	if err != nil {
		return 0, err
	}
	for i, o := range objects {
		dst := dstPrefix + strings.TrimPrefix(o.Key, srcPrefix)
		if err := s.Copy(ctx, bucket, o.Key, bucket, dst); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}

// DeletePrefix removes every object under prefix.
func DeletePrefix(ctx context.Context, s Storage, bucket, prefix string) error {
	objects, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := s.Delete(ctx, bucket, o.Key); err != nil {
			return err
		}
	}
	return nil
}
