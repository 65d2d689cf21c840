package keycache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starlift/starlift/pkg/enums"
	"github.com/starlift/starlift/pkg/logger"
	"github.com/starlift/starlift/pkg/redis"
)

// Cache maps natural keys to surrogate keys for the duration of one run.
//
// The in-process map is authoritative for the run; Redis mirrors it so that
// repeated lookups across processes skip the warehouse. The warehouse itself
// remains the source of truth: a cache miss is never an error, it just sends
// the caller back to the dimension table.
type Cache struct {
	runID string
	store *redis.Client
	ttl   time.Duration
	logg  *logger.Logger

	mu       sync.Mutex
	keys     map[string]int64
	inflight map[string]chan struct{}

	degraded atomic.Bool
}

// New builds a cache scoped to runID. store may be nil, in which case the
// cache runs on the in-process map alone.
func New(runID string, store *redis.Client, ttl time.Duration, logg *logger.Logger) *Cache {
	return &Cache{
		runID:    runID,
		store:    store,
		ttl:      ttl,
		logg:     logg,
		keys:     make(map[string]int64),
		inflight: make(map[string]chan struct{}),
	}
}

// Get returns the cached surrogate key for the natural key, consulting the
// local map first and the Redis mirror second.
func (c *Cache) Get(ctx context.Context, entity enums.EntityType, naturalKey string) (int64, bool) {
	lookup := c.entryKey(entity, naturalKey)

	c.mu.Lock()
	value, ok := c.keys[lookup]
	c.mu.Unlock()
	if ok {
		return value, true
	}

	if c.store == nil || c.degraded.Load() {
		return 0, false
	}
	raw, err := c.store.Get(ctx, c.store.DimensionKeyKey(c.runID, entity.String(), naturalKey))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.markDegraded(ctx, err)
		}
		return 0, false
	}
	value, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	c.mu.Lock()
	c.keys[lookup] = value
	c.mu.Unlock()
	return value, true
}

// Put records a resolved surrogate key in both tiers.
func (c *Cache) Put(ctx context.Context, entity enums.EntityType, naturalKey string, key int64) {
	c.mu.Lock()
	c.keys[c.entryKey(entity, naturalKey)] = key
	c.mu.Unlock()
	c.mirror(ctx, entity, naturalKey, key)
}

// GetOrLoad returns the cached key, or resolves it via load exactly once per
// natural key even under concurrent callers. Waiters block until the winning
// call finishes, then re-check the cache.
func (c *Cache) GetOrLoad(ctx context.Context, entity enums.EntityType, naturalKey string, load func(context.Context) (int64, error)) (int64, error) {
	if value, ok := c.Get(ctx, entity, naturalKey); ok {
		return value, nil
	}

	lookup := c.entryKey(entity, naturalKey)
	for {
		c.mu.Lock()
		if value, ok := c.keys[lookup]; ok {
			c.mu.Unlock()
			return value, nil
		}
		if waiter, ok := c.inflight[lookup]; ok {
			c.mu.Unlock()
			select {
			case <-waiter:
				continue
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		done := make(chan struct{})
		c.inflight[lookup] = done
		c.mu.Unlock()

		value, err := load(ctx)

		c.mu.Lock()
		delete(c.inflight, lookup)
		if err == nil {
			c.keys[lookup] = value
		}
		close(done)
		c.mu.Unlock()

		if err != nil {
			return 0, err
		}
		c.mirror(ctx, entity, naturalKey, value)
		return value, nil
	}
}

// Warm preloads a batch of known mappings, typically read from the warehouse
// before the dimension stage starts.
func (c *Cache) Warm(ctx context.Context, entity enums.EntityType, mappings map[string]int64) {
	if len(mappings) == 0 {
		return
	}
	pairs := make([]any, 0, len(mappings)*2)
	c.mu.Lock()
	for naturalKey, key := range mappings {
		c.keys[c.entryKey(entity, naturalKey)] = key
		pairs = append(pairs, c.redisKey(entity, naturalKey), strconv.FormatInt(key, 10))
	}
	c.mu.Unlock()

	if c.store == nil || c.degraded.Load() {
		return
	}
	if err := c.store.MSet(ctx, pairs...); err != nil {
		c.markDegraded(ctx, err)
	}
}

// Len returns the number of locally cached mappings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// Degraded reports whether the Redis mirror has been abandoned for this run.
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}

// Close drops the run's mirrored keys from Redis.
func (c *Cache) Close(ctx context.Context) error {
	if c.store == nil || c.degraded.Load() {
		return nil
	}
	_, err := c.store.InvalidatePattern(ctx, c.store.DimensionKeyPattern(c.runID))
	return err
}

func (c *Cache) mirror(ctx context.Context, entity enums.EntityType, naturalKey string, key int64) {
	if c.store == nil || c.degraded.Load() {
		return
	}
	if err := c.store.Set(ctx, c.redisKey(entity, naturalKey), strconv.FormatInt(key, 10), c.ttl); err != nil {
		c.markDegraded(ctx, err)
	}
}

// markDegraded switches the cache to map-only mode for the rest of the run.
// A flaky mirror must never fail the load.
func (c *Cache) markDegraded(ctx context.Context, err error) {
	if c.degraded.Swap(true) {
		return
	}
	if c.logg != nil {
		c.logg.Warn(ctx, "key cache mirror unavailable, continuing in-process only: "+err.Error())
	}
}

func (c *Cache) redisKey(entity enums.EntityType, naturalKey string) string {
	return c.store.DimensionKeyKey(c.runID, entity.String(), naturalKey)
}

func (c *Cache) entryKey(entity enums.EntityType, naturalKey string) string {
	return entity.String() + ":" + naturalKey
}
