package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStorage keeps objects in process memory. It backs local runs without
// an object store and the tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]map[string]memoryObject)}
}

func (m *MemoryStorage) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading %s/%s", bucket, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]memoryObject)
	}
	m.buckets[bucket][key] = memoryObject{data: data, contentType: contentType, modified: time.Now().UTC()}
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, bucket, key string, dst io.Writer) error {
	o, err := m.object(bucket, key)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, bytes.NewReader(o.data))
	return err
}

func (m *MemoryStorage) Stat(_ context.Context, bucket, key string) (*ObjectInfo, error) {
	o, err := m.object(bucket, key)
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{Key: key, Size: int64(len(o.data)), ContentType: o.contentType, LastModified: o.modified}, nil
}

func (m *MemoryStorage) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	o, err := m.object(srcBucket, srcKey)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[dstBucket] == nil {
		m.buckets[dstBucket] = make(map[string]memoryObject)
	}
	o.modified = time.Now().UTC()
	m.buckets[dstBucket][dstKey] = o
	return nil
}

func (m *MemoryStorage) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for k, o := range m.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			objects = append(objects, ObjectInfo{Key: k, Size: int64(len(o.data)), ContentType: o.contentType, LastModified: o.modified})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryStorage) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryStorage) Type() string {
	return "memory"
}

func (m *MemoryStorage) object(bucket, key string) (memoryObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.buckets[bucket][key]
	if !ok {
		return memoryObject{}, errors.Wrapf(ErrObjectNotFound, "%s/%s", bucket, key)
	}
	return o, nil
}
