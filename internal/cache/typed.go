package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// GetOrLoad returns the value cached under key, or calls load and caches its
// result. Backend errors other than a miss fall through to load.
func GetOrLoad[T any](ctx context.Context, b Backend, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var value T
	data, err := b.Get(ctx, key)
	if err == nil {
		if err := json.Unmarshal(data, &value); err == nil {
			return value, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		zap.S().Named("cache").Warnw("cache read failed", "key", key, "error", err)
	}

	value, err = load(ctx)
	if err != nil {
		return value, err
	}

	if data, err := json.Marshal(value); err == nil {
		if err := b.Set(ctx, key, data, ttl); err != nil {
			zap.S().Named("cache").Warnw("cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}
