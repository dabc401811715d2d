package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token pair in a single Redis hash, so both tokens are
// written with one HSET and removed with one DEL.
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisConfig holds Redis connection configuration for the token store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash under which the pair is stored. Embedding apps that run
	// several clients against one Redis should pick distinct keys.
	Key string
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore creates a Redis-backed store using the given client and hash key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "authclient:tokens"
	}
	return &RedisStore{client: client, key: key}
}

// Get retrieves the requested token, or an empty string when absent.
func (s *RedisStore) Get(ctx context.Context, kind Kind) (string, error) {
	val, err := s.client.HGet(ctx, s.key, string(kind)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return val, nil
}

// Set stores both tokens of the pair in one command.
func (s *RedisStore) Set(ctx context.Context, pair Pair) error {
	err := s.client.HSet(ctx, s.key,
		string(Access), pair.Access,
		string(Refresh), pair.Refresh,
	).Err()
	if err != nil {
		return fmt.Errorf("redis set token pair: %w", err)
	}
	return nil
}

// Clear removes the whole hash.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis clear tokens: %w", err)
	}
	return nil
}
