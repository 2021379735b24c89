package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "embedding:"

// RedisCache stores question embeddings between requests, keyed by a hash of
// the question text. It is optional infrastructure: a nil *RedisCache is a
// valid cache that always misses.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, embeddingKeyPrefix+textHash).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vec, true, nil
}

func (c *RedisCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, embeddingKeyPrefix+textHash, raw, ttl).Err()
}

func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
