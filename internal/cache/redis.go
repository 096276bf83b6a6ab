package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLockHeld is returned when another process holds the lock
	ErrLockHeld = errors.New("lock is held by another process")

	// ErrMiss is returned when a key is not cached
	ErrMiss = errors.New("cache miss")
)

const (
	// RecalcLockKey guards the season replay against concurrent writers
	RecalcLockKey = "soccerview:lock:recalc"

	// LeaderboardPrefix namespaces cached leaderboard pages
	LeaderboardPrefix = "soccerview:leaderboard:"

	statusKey = "soccerview:status:"
)

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis connection settings
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisCache wraps a Redis client with the lock, leaderboard and status
// operations used by the rating service
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// AcquireLock takes key for ttl and returns the token needed to release it.
// Returns ErrLockHeld if someone else holds it.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrLockHeld)
	}

	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Lock acquired")
	return token, nil
}

// ReleaseLock frees key if token still owns it. A lock that expired or was
// taken over is left alone.
func (c *RedisCache) ReleaseLock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, c.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		log.Warn().Str("key", key).Msg("Lock expired before release")
	}
	return nil
}

// GetJSON loads key into dest. Returns ErrMiss if the key is absent.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}

	metrics.RecordCacheHit()
	return nil
}

// SetJSON stores value under key for ttl
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix deletes every key starting with prefix and returns how
// many were removed
func (c *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan %s: %w", prefix, err)
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete keys: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// SetStatus stores the last run summary of a job. Status never expires.
func (c *RedisCache) SetStatus(ctx context.Context, job string, status interface{}) error {
	return c.SetJSON(ctx, statusKey+job, status, 0)
}

// GetStatus loads the last run summary of a job into dest
func (c *RedisCache) GetStatus(ctx context.Context, job string, dest interface{}) error {
	return c.GetJSON(ctx, statusKey+job, dest)
}
