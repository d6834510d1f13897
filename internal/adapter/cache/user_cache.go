package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "user-api/internal/domain/user"
)

// UserCache defines the interface for user caching operations.
type UserCache interface {
	// Get retrieves a user from cache by ID.
	// The bool is false on a cache miss.
	Get(ctx context.Context, id int64) (*domain.User, bool, error)

	// Version returns the invalidation counter for id. Read it before loading
	// the user from the database and hand it back to Set.
	Version(ctx context.Context, id int64) (int64, error)

	// Set stores a user with the configured TTL unless the entry was
	// invalidated after version was read. It reports whether it stored.
	Set(ctx context.Context, user *domain.User, version int64) (bool, error)

	// Delete removes a user from cache by ID and bumps its version.
	Delete(ctx context.Context, id int64) error
}

// versionTTL bounds how long an invalidation is remembered. It must outlast
// the slowest database read that can race with a write.
const versionTTL = 10 * time.Minute

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[2].
// A missing version key counts as 0. ARGV[3] is the TTL in ms, 0 for none.
var setIfVersion = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2])) or 0
if current ~= tonumber(ARGV[2]) then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// RedisUserCache implements UserCache using Redis as the backing store.
// Entries are JSON encoded users under "user-api:user:<id>"; the
// invalidation counter lives under "user-api:user:<id>:version".
type RedisUserCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisUserCache creates a new Redis-backed user cache.
func NewRedisUserCache(client redis.Cmdable, ttl time.Duration, log *zap.Logger) *RedisUserCache {
	return &RedisUserCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("user-api:user:%d", id)
}

func versionKey(id int64) string {
	return cacheKey(id) + ":version"
}

// Version reads the invalidation counter for id.
func (c *RedisUserCache) Version(ctx context.Context, id int64) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version user %d: %w", id, err)
	}
	return v, nil
}

// Get retrieves a user from Redis cache.
func (c *RedisUserCache) Get(ctx context.Context, id int64) (*domain.User, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", zap.Int64("user_id", id))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get user %d: %w", id, err)
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		// A corrupt entry is dropped and reported as a miss.
		c.log.Warn("discarding unreadable cache entry", zap.Int64("user_id", id), zap.Error(err))
		_ = c.client.Del(ctx, cacheKey(id)).Err()
		return nil, false, nil
	}

	c.log.Debug("cache hit", zap.Int64("user_id", id))
	return &u, true, nil
}

// Set stores a user in Redis with TTL if its version is still current.
func (c *RedisUserCache) Set(ctx context.Context, u *domain.User, version int64) (bool, error) {
	if u == nil {
		return false, errors.New("cannot cache nil user")
	}

	data, err := json.Marshal(u)
	if err != nil {
		return false, fmt.Errorf("encode user %d: %w", u.ID, err)
	}

	stored, err := setIfVersion.Run(ctx, c.client,
		[]string{cacheKey(u.ID), versionKey(u.ID)},
		data, version, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache set user %d: %w", u.ID, err)
	}
	if stored == 0 {
		c.log.Debug("skipped caching invalidated user", zap.Int64("user_id", u.ID), zap.Int64("version", version))
		return false, nil
	}

	c.log.Debug("cached user", zap.Int64("user_id", u.ID), zap.Duration("ttl", c.ttl))
	return true, nil
}

// Delete removes a user from Redis and bumps its version so that reads
// started before the call cannot store the old row afterwards.
func (c *RedisUserCache) Delete(ctx context.Context, id int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL)
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache delete user %d: %w", id, err)
	}

	c.log.Debug("deleted from cache", zap.Int64("user_id", id))
	return nil
}
