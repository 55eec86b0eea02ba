package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin JSON-codec wrapper over redis.Client. Every value in
// the cache is a JSON blob: live ticks, the active watchlist document, the
// webhook subscription list. Callers own key naming and TTLs.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis. Returns nil on connection failure so the
// caller can degrade to cache-less operation.
func NewRedisClient(host, port, password string) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		return nil
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &RedisClient{client: client}
}

// Set marshals value to JSON and stores it with the given TTL.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get unmarshals the value at key into dest. Missing keys return an error.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Delete removes a key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return r.client.Del(ctx, key).Err()
}

// MGet fetches many keys in one round trip, returning the raw JSON blobs in
// key order. Missing or expired keys come back as "".
func (r *RedisClient) MGet(ctx context.Context, keys []string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if len(keys) == 0 {
		return nil, nil
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]string, len(results))
	for i, result := range results {
		if str, ok := result.(string); ok {
			out[i] = str
		}
	}
	return out, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
