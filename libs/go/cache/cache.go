// Package cache implements the two-tier aggregate cache described in
// spec §4.1: an in-process tier backed by a local map, falling through
// to Redis, with singleflight coalescing so a cold key stampede only
// ever issues one upstream fetch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/labrinth-gg/labrinth/libs/go/logger"
	"github.com/labrinth-gg/labrinth/libs/go/metrics"
)

// Kind namespaces keys by entity type, the way the aggregate reader
// addresses project/version/team/organization rows.
type Kind string

const (
	KindProject      Kind = "project"
	KindProjectSlug  Kind = "project_slug"
	KindVersion      Kind = "version"
	KindTeam         Kind = "team"
	KindOrganization Kind = "organization"
	KindUser         Kind = "user"
	KindSharedInstance Kind = "shared_instance"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache is the two-tier reader: a local map guarded by a mutex, and an
// optional Redis client as the second tier. Redis may be nil, in which
// case the cache degrades to local-only (used in tests, which pass a
// nil client).
type Cache struct {
	mu    sync.RWMutex
	local map[string]entry
	ttl   time.Duration

	redis *redis.Client
	group singleflight.Group
}

func New(redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		local: make(map[string]entry),
		ttl:   ttl,
		redis: redisClient,
	}
}

// Key builds the namespaced cache key for an entity id.
func Key(kind Kind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// SlugKey builds the namespaced cache key for a slug lookup, lower-cased
// so "Fabric-API" and "fabric-api" hit the same entry.
func SlugKey(kind Kind, slug string) string {
	return fmt.Sprintf("%s_slug:%s", kind, strings.ToLower(slug))
}

// GetKeys fetches multiple ids of one kind, returning the decoded
// values found and the subset of ids that missed both tiers. It never
// populates the cache itself — callers that hit the database for the
// misses are expected to call SetMany afterward.
func GetKeys[T any](ctx context.Context, c *Cache, kind Kind, ids []int64) (found map[int64]T, missing []int64) {
	found = make(map[int64]T, len(ids))
	for _, id := range ids {
		key := Key(kind, id)
		var v T
		if c.getOne(ctx, key, &v) {
			found[id] = v
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// GetKeysWithSlug is GetKeys for entities addressable by either numeric
// id or slug (projects, organizations), per spec §4.1's combined
// id-or-slug aggregate lookup.
func GetKeysWithSlug[T any](ctx context.Context, c *Cache, kind Kind, ids []int64, slugs []string) (byID map[int64]T, missingIDs []int64, bySlug map[string]T, missingSlugs []string) {
	byID, missingIDs = GetKeys[T](ctx, c, kind, ids)
	bySlug = make(map[string]T, len(slugs))
	for _, slug := range slugs {
		key := SlugKey(kind, slug)
		var v T
		if c.getOne(ctx, key, &v) {
			bySlug[slug] = v
		} else {
			missingSlugs = append(missingSlugs, slug)
		}
	}
	return byID, missingIDs, bySlug, missingSlugs
}

func (c *Cache) getOne(ctx context.Context, key string, dest any) bool {
	kind := keyKind(key)

	c.mu.RLock()
	e, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		if time.Now().Before(e.expires) {
			if err := json.Unmarshal(e.value, dest); err == nil {
				metrics.CacheLookupsTotal.WithLabelValues(kind, "hit_local").Inc()
				return true
			}
		} else {
			c.mu.Lock()
			delete(c.local, key)
			c.mu.Unlock()
		}
	}

	if c.redis == nil {
		metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("cache redis get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	c.storeLocal(key, raw)
	metrics.CacheLookupsTotal.WithLabelValues(kind, "hit_redis").Inc()
	return true
}

// keyKind extracts the namespace prefix of a cache key for metric
// labeling, e.g. "project" out of "project:42".
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// Fetch resolves a single key via the cache, falling through to load
// on a miss; concurrent callers for the same key are coalesced via
// singleflight so a hot cold-key only triggers one load.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var out T
	if c.getOne(ctx, key, &out) {
		return out, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if c.getOne(ctx, key, &out) {
			return out, nil
		}
		loaded, err := load(ctx)
		if err != nil {
			return zero, err
		}
		c.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Set writes a value into both tiers.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.storeLocal(key, raw)
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Warn("cache redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// SetMany writes a batch of ids of the same kind in one pass.
func SetMany[T any](ctx context.Context, c *Cache, kind Kind, values map[int64]T) {
	for id, v := range values {
		c.Set(ctx, Key(kind, id), v)
	}
}

func (c *Cache) storeLocal(key string, raw []byte) {
	c.mu.Lock()
	c.local[key] = entry{value: raw, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete evicts a single key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
	if c.redis != nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			logger.Warn("cache redis delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// DeleteMany evicts a batch of keys for one kind by id, used after the
// project-delete cascade and similar bulk-invalidation events.
func DeleteMany(ctx context.Context, c *Cache, kind Kind, ids []int64) {
	for _, id := range ids {
		c.Delete(ctx, Key(kind, id))
	}
}

// DeleteSlug evicts a slug-addressed key, e.g. when a project's slug
// changes and the old slug entry would otherwise serve stale data
// until TTL expiry.
func DeleteSlug(ctx context.Context, c *Cache, kind Kind, slug string) {
	c.Delete(ctx, SlugKey(kind, slug))
}

// FormatIDList renders ids for log fields without pulling in a
// dependency for what is, in practice, a debug string.
func FormatIDList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
