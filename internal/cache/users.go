// Package cache keeps an evictable id → username lookup table in Redis.
// It never owns user data; the identity store stays authoritative.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/thereayou/groupchat/internal/models"
)

const keyPrefix = "username:"

type UserLoader interface {
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
}

type Users struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUsers(rdb *redis.Client, ttl time.Duration) *Users {
	return &Users{rdb: rdb, ttl: ttl}
}

// Username resolves id through the cache, falling back to loader on a miss
// or when Redis is unavailable.
func (c *Users) Username(ctx context.Context, id models.ID, loader UserLoader) (string, error) {
	name, err := c.rdb.Get(ctx, keyPrefix+id.String()).Result()
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("username cache read failed", "user_id", id, "err", err)
	}

	user, err := loader.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	c.Put(ctx, id, user.Username)
	return user.Username, nil
}

func (c *Users) Put(ctx context.Context, id models.ID, username string) {
	if err := c.rdb.Set(ctx, keyPrefix+id.String(), username, c.ttl).Err(); err != nil {
		slog.Warn("username cache write failed", "user_id", id, "err", err)
	}
}

// Evict drops id so the next lookup goes back to the store.
func (c *Users) Evict(ctx context.Context, id models.ID) {
	if err := c.rdb.Del(ctx, keyPrefix+id.String()).Err(); err != nil {
		slog.Warn("username cache evict failed", "user_id", id, "err", err)
	}
}
