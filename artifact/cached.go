package artifact

import (
	"context"

	"github.com/dgraph-io/ristretto"

	"github.com/threadline-ai/threadline/core"
)

// Cached is a read-through decorator over another artifact store. Prompt
// templates are read on every turn but change rarely, so hits skip the
// backing store entirely. Writes go to the backing store first and then
// drop the stale entry.
type Cached struct {
	inner core.ArtifactStore
	cache *ristretto.Cache
}

var _ core.ArtifactStore = (*Cached)(nil)

// NewCached wraps inner with an in-process cache sized for maxBytes of
// artifact text.
func NewCached(inner core.ArtifactStore, maxBytes int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Read implements core.ArtifactStore.
func (c *Cached) Read(ctx context.Context, name, path string) (string, error) {
	key := path + "/" + name
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}
	contents, err := c.inner.Read(ctx, name, path)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, contents, int64(len(contents)))
	return contents, nil
}

// Write implements core.ArtifactStore. The entry is invalidated rather than
// refreshed, so the next read observes whatever the backing store accepted.
func (c *Cached) Write(ctx context.Context, contents, name, path string) error {
	if err := c.inner.Write(ctx, contents, name, path); err != nil {
		return err
	}
	c.cache.Del(path + "/" + name)
	return nil
}

// List implements core.ArtifactStore. Listings are not cached.
func (c *Cached) List(ctx context.Context, path string) ([]string, error) {
	return c.inner.List(ctx, path)
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (c *Cached) Wait() { c.cache.Wait() }
