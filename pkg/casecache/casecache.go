// Package casecache caches ingested case documents so turn processing
// does not hit the store for every utterance. Two drivers are
// available: an in-process map and Redis for multi-node gateways.
package casecache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verdictech/gavel/pkg/core/types"
)

// CacheType selects the cache driver.
type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

var (
	ErrInvalidCacheType = errors.New("casecache: unknown cache type")
	ErrInvalidConfig    = errors.New("casecache: invalid configuration")
)

const (
	caseKeyPrefix = "case:"
	defaultTTL    = 24 * time.Hour
)

// Cache is a read-through cache of case documents. A miss is
// (nil, nil), never an error.
type Cache interface {
	Get(ctx context.Context, caseID string) (*types.Case, error)
	Put(ctx context.Context, c *types.Case) error
	Delete(ctx context.Context, caseID string) error
	Close() error
}

type cacheConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// Option configures the cache factory.
type Option func(*cacheConfig)

// WithRedisClient supplies the Redis client for the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *cacheConfig) { c.redisClient = client }
}

// WithTTL overrides the entry TTL for the redis driver.
func WithTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// New creates a Cache for the given driver type.
func New(cacheType CacheType, opts ...Option) (Cache, error) {
	config := &cacheConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch cacheType {
	case CacheTypeMemory:
		return &memoryCache{cases: make(map[string]*types.Case)}, nil

	case CacheTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := config.ttl
		if ttl <= 0 {
			ttl = defaultTTL
		}
		return &redisCache{client: config.redisClient, ttl: ttl}, nil

	default:
		return nil, ErrInvalidCacheType
	}
}

type memoryCache struct {
	mu    sync.RWMutex
	cases map[string]*types.Case
}

func (m *memoryCache) Get(ctx context.Context, caseID string) (*types.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[caseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCache) Put(ctx context.Context, c *types.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cases, caseID)
	return nil
}

func (m *memoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cases = nil
	return nil
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *redisCache) Get(ctx context.Context, caseID string) (*types.Case, error) {
	val, err := r.client.Get(ctx, caseKeyPrefix+caseID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c types.Case
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return nil, err
	}

	// Refresh TTL on read
	_ = r.client.Expire(ctx, caseKeyPrefix+caseID, r.ttl).Err()

	return &c, nil
}

func (r *redisCache) Put(ctx context.Context, c *types.Case) error {
	val, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, caseKeyPrefix+c.ID, val, r.ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, caseID string) error {
	return r.client.Del(ctx, caseKeyPrefix+caseID).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
