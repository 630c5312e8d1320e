// Package memo caches panel results keyed by their full input.
package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes values by key. Concurrent Gets for the same key
// share one computation. Failed computations are not stored.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	gen     uint64
	group   singleflight.Group
}

// New returns an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key, calling fn to compute it
// on a miss. The second result reports a cache hit.
//
// fn runs detached from ctx's cancellation so callers sharing a
// computation are not failed by the one that started it. A
// caller whose ctx ends stops waiting and gets ctx.Err().
func (c *Cache[V]) Get(
	ctx context.Context, key string,
	fn func(ctx context.Context) (V, error),
) (V, bool, error) {
	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return v, true, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// A call started after Reset never joins one started before it.
	flight := fmt.Sprintf("%d/%s", gen, key)
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.entries[key]; ok && c.gen == gen {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		v, err := fn(detached)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		v, _ := res.Val.(V)
		return v, false, nil
	}
}

// Reset drops every entry. Computations in flight when Reset is
// called still return to their callers but are not stored.
func (c *Cache[V]) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]V)
	c.gen++
	c.mu.Unlock()
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key hashes the canonical JSON encoding of parts. Parts must be
// JSON-encodable; map keys are sorted by encoding/json.
func Key(parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		panic(fmt.Sprintf("memo: unencodable key: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
