package user

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a cache-aside layer over user reads. All cache errors degrade to
// a miss: Redis being down slows the admin API, it never breaks it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id int) string {
	return fmt.Sprintf("user:%d", id)
}

func (c *Cache) GetUser(ctx context.Context, id int) (*User, bool) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("user cache get %d: %v", id, err)
		}
		return nil, false
	}

	u := &User{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		log.Printf("user cache decode %d: %v", id, err)
		return nil, false
	}
	return u, true
}

func (c *Cache) SetUser(ctx context.Context, u *User) {
	raw, err := json.Marshal(u)
	if err != nil {
		log.Printf("user cache encode %d: %v", u.ID, err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(u.ID), raw, c.ttl).Err(); err != nil {
		log.Printf("user cache set %d: %v", u.ID, err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, id int) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		log.Printf("user cache del %d: %v", id, err)
	}
}
