package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/clientevip/repository"
)

type codeCache struct {
	client redislib.Cmdable
	prefix string
	ttl    time.Duration
}

// NewCodeCache creates a Redis-backed code to membership id cache.
func NewCodeCache(client redislib.Cmdable, ttl time.Duration) repository.CodeCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &codeCache{
		client: client,
		prefix: "vipcode:",
		ttl:    ttl,
	}
}

func (c *codeCache) Get(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.key(code)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", repository.ErrCacheMiss
		}
		return "", err
	}
	return id, nil
}

func (c *codeCache) Set(ctx context.Context, code, membershipID string) error {
	if code == "" || membershipID == "" {
		return nil
	}
	return c.client.Set(ctx, c.key(code), membershipID, c.ttl).Err()
}

func (c *codeCache) Delete(ctx context.Context, codes ...string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, c.key(code))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *codeCache) key(code string) string {
	return fmt.Sprintf("%s%s", c.prefix, code)
}
