package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/statspub/publisher/internal/storage"
)

// BlobBackend keeps cached values as objects under a prefix of a bucket. It
// ignores ttl; entries live until deleted.
type BlobBackend struct {
	store  storage.Storage
	bucket string
	prefix string
}

func NewBlobBackend(store storage.Storage, bucket, prefix string) *BlobBackend {
	return &BlobBackend{store: store, bucket: bucket, prefix: prefix}
}

func (b *BlobBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.store.Get(ctx, b.bucket, b.prefix+key, &buf); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BlobBackend) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return b.store.Put(ctx, b.bucket, b.prefix+key, bytes.NewReader(value), int64(len(value)), "application/json")
}

func (b *BlobBackend) Delete(ctx context.Context, key string) error {
	return b.store.Delete(ctx, b.bucket, b.prefix+key)
}
