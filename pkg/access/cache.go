package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache keeps resolved per-user access-level sets in Redis so the bulk
// resolution query is not re-run on every request. Entries are
// invalidated explicitly whenever a project's ACL mutates; the TTL is a
// safety net, not the consistency mechanism.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// NewCacheFromClient wraps an existing client; used by tests.
func NewCacheFromClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(userID, projectID int64) string {
	return fmt.Sprintf("acl:user:%d:project:%d", userID, projectID)
}

// ResolvedAccess is the cached value: the alias set a user inherits on
// one project plus the governor flag.
type ResolvedAccess struct {
	Levels     []string `json:"levels"`
	IsGovernor bool     `json:"is_governor"`
}

// Get returns the cached resolution, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, userID, projectID int64) (*ResolvedAccess, error) {
	data, err := c.client.Get(ctx, cacheKey(userID, projectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var out ResolvedAccess
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		c.client.Del(ctx, cacheKey(userID, projectID))
		return nil, nil
	}
	return &out, nil
}

// Put stores a resolution under the configured TTL.
func (c *Cache) Put(ctx context.Context, userID, projectID int64, access *ResolvedAccess) error {
	data, err := json.Marshal(access)
	if err != nil {
		return fmt.Errorf("failed to marshal resolved access: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(userID, projectID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateProject drops every cached resolution for a project. Called
// after any ACL mutation on that project.
func (c *Cache) InvalidateProject(ctx context.Context, projectID int64) error {
	pattern := fmt.Sprintf("acl:user:*:project:%d", projectID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// InvalidateUser drops every cached resolution for a user. Called when
// the user's group memberships change.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	pattern := fmt.Sprintf("acl:user:%d:project:*", userID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.client.Close() }
