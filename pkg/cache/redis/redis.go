package redis

import (
	"context"
	"fmt"
	"time"

	"banca-client/pkg/cache"

	"github.com/redis/rueidis"
)

// RedisCache is the shared L2 layer. Payloads are stored as raw bytes
// under KeyPrefix.
type RedisCache struct {
	client rueidis.Client
	config RedisCacheConfig
}

// RedisCacheConfig configures the Redis layer. Exactly one of Addr,
// ClusterAddrs or SentinelAddrs selects the topology.
type RedisCacheConfig struct {
	Name string

	// Addr is the single-node address, e.g. "localhost:6379"
	Addr string

	// ClusterAddrs enables cluster mode
	ClusterAddrs []string

	// SentinelAddrs enables sentinel mode with SentinelMasterSet
	SentinelAddrs     []string
	SentinelMasterSet string

	Username string
	Password string

	// DB is the database number; cluster mode only supports 0
	DB int

	KeyPrefix    string
	DefaultTTL   time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisCacheConfig returns a single-node configuration for localhost.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "banca:",
		DefaultTTL:   5 * time.Minute,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisCache connects and pings the server.
func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	clientOpts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	}
	if len(config.SentinelAddrs) > 0 {
		clientOpts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
		}
	}

	client, err := rueidis.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisCache{client: client, config: config}, nil
}

func (r *RedisCache) key(k string) string {
	return r.config.KeyPrefix + k
}

// Get returns the payload stored under key.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set stores value with an expiry. A zero ttl uses DefaultTTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix, scanning in batches.
// It returns the number of keys removed.
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := r.key(prefix) + "*"
	removed := 0

	var cursor uint64
	for {
		resp := r.client.Do(ctx, r.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		entry, err := resp.AsScanEntry()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		if len(entry.Elements) > 0 {
			if err := r.client.Do(ctx, r.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return removed, fmt.Errorf("redis delete prefix: %w", err)
			}
			removed += len(entry.Elements)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

// TTL returns the remaining lifetime of key, or ErrKeyNotFound.
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := r.client.Do(ctx, r.client.B().Ttl().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Name returns the layer name.
func (r *RedisCache) Name() string {
	return r.config.Name
}

// Close closes the client.
func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}
