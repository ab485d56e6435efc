package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the durable key-value store sessions live in. Get returns nil, nil
// for a missing or expired key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Swapper is implemented by stores that can write conditionally.
// CompareAndSwap replaces the value at key with next, applying ttl, only if
// the current value equals prev byte for byte. It reports whether the write
// happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)
}

// Store is the Redis-backed KV. It also implements Swapper.
type Store struct {
	client     *redis.Client
	swapScript *redis.Script
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewStore creates a new session store connected to Redis.
func NewStore(cfg RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return NewStoreWithClient(client), nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{
		client:     client,
		swapScript: redis.NewScript(compareAndSwapLua),
	}
}

// Get returns the raw value at key, or nil if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", key, err)
	}
	return val, nil
}

// Set writes value at key with the given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("session: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap atomically replaces prev with next at key. A missing key
// never matches.
func (s *Store) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	result, err := s.swapScript.Run(ctx, s.client, []string{key},
		prev, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("session: compare and swap %s: %w", key, err)
	}
	return result == 1, nil
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}

// compareAndSwapLua returns:
//
//	 1 = swapped
//	 0 = current value differs from ARGV[1]
//	-1 = key missing
const compareAndSwapLua = `
local key = KEYS[1]

local current = redis.call('GET', key)
if not current then return -1 end
if current ~= ARGV[1] then return 0 end

redis.call('SET', key, ARGV[2], 'PX', ARGV[3])
return 1
`
