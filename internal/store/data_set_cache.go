package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/store/model"
)

// CachedDataSetStore wraps a DataSet store and keeps published data sets in
// memory. Published rows are immutable so they never go stale; anything
// written through the wrapper drops the cache.
type CachedDataSetStore struct {
	delegate  DataSet
	published map[uuid.UUID]model.DataSet
	mu        sync.RWMutex
}

var _ DataSet = (*CachedDataSetStore)(nil)

func NewCachedDataSetStore(delegate DataSet) DataSet {
	return &CachedDataSetStore{
		delegate:  delegate,
		published: make(map[uuid.UUID]model.DataSet),
	}
}

func (c *CachedDataSetStore) Get(ctx context.Context, id uuid.UUID) (*model.DataSet, error) {
	c.mu.RLock()
	ds, found := c.published[id]
	c.mu.RUnlock()
	if found {
		return &ds, nil
	}

	fresh, err := c.delegate.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fresh.Status == model.DataSetStatusPublished {
		c.mu.Lock()
		c.published[id] = *fresh
		c.mu.Unlock()
	}
	return fresh, nil
}

func (c *CachedDataSetStore) ListByReleaseVersion(ctx context.Context, releaseVersionID uuid.UUID) (model.DataSetList, error) {
	return c.delegate.ListByReleaseVersion(ctx, releaseVersionID)
}

func (c *CachedDataSetStore) Update(ctx context.Context, ds model.DataSet) (*model.DataSet, error) {
	c.reset()
	return c.delegate.Update(ctx, ds)
}

func (c *CachedDataSetStore) Publish(ctx context.Context, releaseVersionID uuid.UUID, at time.Time) error {
	c.reset()
	return c.delegate.Publish(ctx, releaseVersionID, at)
}

func (c *CachedDataSetStore) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = make(map[uuid.UUID]model.DataSet)
}
