package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Backend stores opaque values under string keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Registry holds the named backends available to the services. It is built
// once at startup and passed to whoever needs a cache.
type Registry struct {
	lock     sync.RWMutex
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

func (r *Registry) Register(name string, b Backend) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.backends[name] = b
}

func (r *Registry) Get(name string) (Backend, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("cache backend %q is not registered", name)
	}
	return b, nil
}

// KeyBuilder derives a cache key from the arguments of a cached call.
type KeyBuilder[T any] func(arg T) string

// Key joins parts with a colon.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
