package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("cache: key not found")

const (
	sessionPrefix = "nitematch:session:"
	matchPrefix   = "nitematch:matches:"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	Instrumented bool
}

// RedisClientInterface is the subset of the Redis client the store uses.
// Tests substitute a testify mock.
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// CacheStats holds cache performance counters
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
}

// HitRate calculates the cache hit rate
func (cs CacheStats) HitRate() float64 {
	total := cs.Hits + cs.Misses
	if total == 0 {
		return 0.0
	}
	return float64(cs.Hits) / float64(total)
}

// Store keeps browser sessions and per-user computed matches in Redis.
type Store struct {
	client   RedisClientInterface
	matchTTL time.Duration

	hits, misses, sets, deletes atomic.Int64
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, config RedisConfig, matchTTL time.Duration) (*Store, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":    "redis_connection",
		"service":      "cache",
		"host":         config.Host,
		"port":         config.Port,
		"db":           config.DB,
		"pool_size":    config.PoolSize,
		"instrumented": config.Instrumented,
	})

	logger.Info("Establishing Redis connection")

	client := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: 3,
	})
	if config.Instrumented {
		telemetry.InstrumentRedisClient(client)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return NewStoreWithClient(client, matchTTL), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client RedisClientInterface, matchTTL time.Duration) *Store {
	return &Store{client: client, matchTTL: matchTTL}
}

// SaveSession stores s for its lifetime, ExpiresAt minus CreatedAt, so the
// key follows the clock that opened the session.
func (s *Store) SaveSession(ctx context.Context, session *identity.Session) error {
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("session has no lifetime")
	}
	return s.setJSON(ctx, "save_session", sessionPrefix+session.ID, session, ttl)
}

// GetSession loads a session by id. Missing or expired sessions yield ErrNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*identity.Session, error) {
	var session identity.Session
	if err := s.getJSON(ctx, "get_session", sessionPrefix+sessionID, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession ends a session. Deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.del(ctx, "delete_session", sessionPrefix+sessionID)
}

// SetMatches caches the computed matches for userID.
func (s *Store) SetMatches(ctx context.Context, userID string, matches interface{}) error {
	return s.setJSON(ctx, "set_matches", matchPrefix+userID, matches, s.matchTTL)
}

// GetMatches loads cached matches for userID into dest.
func (s *Store) GetMatches(ctx context.Context, userID string, dest interface{}) error {
	return s.getJSON(ctx, "get_matches", matchPrefix+userID, dest)
}

// Health pings Redis.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() CacheStats {
	return CacheStats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) setJSON(ctx context.Context, op, key string, value interface{}, ttl time.Duration) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   op,
		"ttl_seconds": ttl.Seconds(),
		"service":     "cache",
	})

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal value for cache")
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.WithError(err).Error("Failed to set cache value")
		return fmt.Errorf("failed to set %s: %w", op, err)
	}
	s.sets.Add(1)
	logger.Debug("Cache value set")
	return nil
}

func (s *Store) getJSON(ctx context.Context, op, key string, dest interface{}) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": op,
		"service":   "cache",
	})

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			logger.Debug("Cache miss")
			return ErrNotFound
		}
		logger.WithError(err).Error("Failed to get cache value")
		return fmt.Errorf("failed to get %s: %w", op, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logger.WithError(err).Warn("Discarding undecodable cache value")
		s.misses.Add(1)
		return ErrNotFound
	}
	s.hits.Add(1)
	logger.Debug("Cache hit")
	return nil
}

func (s *Store) del(ctx context.Context, op, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": op,
			"service":   "cache",
		}).WithError(err).Error("Failed to delete cache key")
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	s.deletes.Add(1)
	return nil
}
