package estimate

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes per-barber effective averages in redis for a short TTL.
// Every operation is best-effort: a redis failure degrades to recomputation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(tenantID, barberID string) string {
	return fmt.Sprintf("barberq:avg:%s:%s", tenantID, barberID)
}

func (c *Cache) Get(ctx context.Context, tenantID, barberID string) (int, bool) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID, barberID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("estimate cache get: %v", err)
		}
		return 0, false
	}
	avg, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return avg, true
}

func (c *Cache) Set(ctx context.Context, tenantID, barberID string, avg int) {
	if err := c.client.Set(ctx, cacheKey(tenantID, barberID), strconv.Itoa(avg), c.ttl).Err(); err != nil {
		log.Printf("estimate cache set: %v", err)
	}
}

func (c *Cache) Delete(ctx context.Context, tenantID, barberID string) {
	if err := c.client.Del(ctx, cacheKey(tenantID, barberID)).Err(); err != nil {
		log.Printf("estimate cache delete: %v", err)
	}
}
