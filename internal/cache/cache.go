package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/jobsync/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)

	// TryLock acquires key for ttl if nobody holds it. The returned release
	// func is safe to call more than once and only drops a lock we still own.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)

	RecordRefresh(ctx context.Context, status models.RefreshStatus) error
	LastRefresh(ctx context.Context) (*models.RefreshStatus, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
	token  func() string
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), token: newLockToken}, nil
}

// Client exposes the underlying connection for adapters that share it.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := c.token()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		// The caller's context may already be cancelled at release time.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, c.client, []string{key}, token).Err()
	}
	return release, true, nil
}

func (c *RedisCache) RecordRefresh(ctx context.Context, status models.RefreshStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal refresh status: %w", err)
	}
	return c.client.Set(ctx, RefreshStatusKey(), data, 0).Err()
}

// LastRefresh returns nil without error when no pass has been recorded yet.
func (c *RedisCache) LastRefresh(ctx context.Context) (*models.RefreshStatus, error) {
	data, found, err := c.Get(ctx, RefreshStatusKey())
	if err != nil || !found {
		return nil, err
	}
	var status models.RefreshStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal refresh status: %w", err)
	}
	return &status, nil
}

var _ Cache = (*RedisCache)(nil)
