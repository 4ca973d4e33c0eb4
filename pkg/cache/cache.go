// Package cache puts a Redis read-through cache in front of a repository.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 5 * time.Minute
	DefaultKeyPrefix = "mvp-hunter:deaths"
)

var _ repositories.Repository = &CachedRepository{}

// setIfGeneration writes KEYS[1] only while the generation counter at
// KEYS[2] still equals ARGV[1]. A missing counter counts as "0".
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current == false then current = '0' end
if current == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

// CachedRepository serves ListDeaths from Redis and invalidates the user's
// entry on every write. Each invalidation also bumps a per-user generation
// counter so a read that raced with a write never stores its stale list.
// Cache failures are logged and fall back to the underlying repository.
type CachedRepository struct {
	repositories.Repository
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

type NewCachedRepositoryOptions struct {
	Repository repositories.Repository
	Client     *redis.Client
	TTL        time.Duration
	KeyPrefix  string
}

func NewCachedRepository(opts NewCachedRepositoryOptions) *CachedRepository {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CachedRepository{
		Repository: opts.Repository,
		rdb:        opts.Client,
		ttl:        ttl,
		prefix:     prefix,
	}
}

// Key returns the cache key holding a user's records.
func (c *CachedRepository) Key(userID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, userID)
}

// GenerationKey returns the key of the counter bumped on every invalidation.
func (c *CachedRepository) GenerationKey(userID string) string {
	return c.Key(userID) + ":gen"
}

func (c *CachedRepository) generation(ctx context.Context, userID string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.GenerationKey(userID)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	return gen, err
}

func (c *CachedRepository) ListDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	key := c.Key(userID)
	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		records := []*models.DeathRecord{}
		if err := json.Unmarshal(cached, &records); err == nil {
			log.Trace("Cache hit for %s", key)
			return records, nil
		}
		log.Warn("Discarding malformed cache entry %s", key)
	case err == redis.Nil:
		log.Trace("Cache miss for %s", key)
	default:
		log.Warn("Failed to read cache entry %s: %v", key, err)
	}

	// Read the generation before the database so a write landing in between is detected.
	gen, genErr := c.generation(ctx, userID)
	if genErr != nil {
		log.Warn("Failed to read cache generation for %s: %v", key, genErr)
	}

	records, err := c.Repository.ListDeaths(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return records, nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		log.Warn("Failed to encode cache entry %s: %v", key, err)
		return records, nil
	}
	stored, err := setIfGeneration.Run(ctx, c.rdb,
		[]string{key, c.GenerationKey(userID)},
		gen, payload, c.ttl.Milliseconds(),
	).Int()
	switch {
	case err != nil:
		log.Warn("Failed to write cache entry %s: %v", key, err)
	case stored == 0:
		log.Debug("Skipped cache fill for %s: invalidated during read", key)
	}
	return records, nil
}

func (c *CachedRepository) UpsertDeath(ctx context.Context, record *models.DeathRecord) (*models.DeathRecord, bool, error) {
	stored, inserted, err := c.Repository.UpsertDeath(ctx, record)
	if err != nil {
		return nil, false, err
	}
	c.invalidate(ctx, record.UserID)
	return stored, inserted, nil
}

func (c *CachedRepository) DeleteDeath(ctx context.Context, userID string, mvpID string) (*models.DeathRecord, error) {
	deleted, err := c.Repository.DeleteDeath(ctx, userID, mvpID)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, userID)
	return deleted, nil
}

func (c *CachedRepository) DeleteAllDeaths(ctx context.Context, userID string) ([]*models.DeathRecord, error) {
	deleted, err := c.Repository.DeleteAllDeaths(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, userID)
	return deleted, nil
}

func (c *CachedRepository) invalidate(ctx context.Context, userID string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.GenerationKey(userID))
		pipe.Del(ctx, c.Key(userID))
		return nil
	})
	if err != nil {
		log.Warn("Failed to invalidate cache entry for user %s: %v", userID, err)
	}
}

// Close closes the underlying repository. The Redis client is owned by the caller.
func (c *CachedRepository) Close(ctx context.Context) error {
	return c.Repository.Close(ctx)
}
