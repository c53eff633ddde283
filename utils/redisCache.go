package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores JSON values under "<resourceType>:<query hash>". A nil client disables it.
type RedisCache struct {
	client       *redis.Client
	resourceType string
	ttl          time.Duration
}

func NewRedisCache(client *redis.Client, resourceType string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, resourceType: resourceType, ttl: ttl}
}

// GenerateKey hashes the filters in key order so equal queries share a key.
func (c *RedisCache) GenerateKey(filters map[string]string) string {
	if c == nil {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for key, value := range filters {
		if value != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var query strings.Builder
	query.WriteString("resource=" + c.resourceType)
	for _, key := range keys {
		fmt.Fprintf(&query, "&%s=%s", key, filters[key])
	}

	sum := sha256.Sum256([]byte(query.String()))
	return fmt.Sprintf("%s:%s", c.resourceType, hex.EncodeToString(sum[:]))
}

// GetJSON decodes the cached value into dest and reports whether one was found.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// InvalidateAll deletes every key of this resource type.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	// SCAN rather than KEYS so large keyspaces do not block redis.
	iter := c.client.Scan(ctx, 0, c.resourceType+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error during SCAN iteration: %w", err)
	}
	return nil
}

// InvalidateAllAsync runs InvalidateAll in the background and reports failures to onErr.
func (c *RedisCache) InvalidateAllAsync(onErr func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.InvalidateAll(ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}
