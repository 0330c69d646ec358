package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "danmu:"

// RedisTier persists to a Redis-compatible key-value store. Cache values sit
// under danmu:cache:<name>, the config overlay in the danmu:env hash.
type RedisTier struct {
	rdb *redis.Client
}

// NewRedisTier connects and pings; a dead server fails fast here so the store
// falls back to the next tier instead of erroring on every write.
func NewRedisTier(addr, username, password string) (*RedisTier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("couldn't reach redis at %v: %w", addr, err)
	}
	return &RedisTier{rdb: rdb}, nil
}

func (t *RedisTier) Name() string { return "redis" }

func (t *RedisTier) LoadConfig() (map[string]string, error) {
	ctx, cancel := opCtx()
	defer cancel()
	overlay, err := t.rdb.HGetAll(ctx, redisKeyPrefix+"env").Result()
	if err != nil {
		return nil, fmt.Errorf("couldn't read config overlay: %w", err)
	}
	return overlay, nil
}

func (t *RedisTier) SaveConfig(overlay map[string]string) error {
	if len(overlay) == 0 {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()
	fields := make(map[string]interface{}, len(overlay))
	for key, value := range overlay {
		fields[key] = value
	}
	return t.rdb.HSet(ctx, redisKeyPrefix+"env", fields).Err()
}

func (t *RedisTier) LoadCache(name string) ([]byte, bool, error) {
	ctx, cancel := opCtx()
	defer cancel()
	value, err := t.rdb.Get(ctx, redisKeyPrefix+"cache:"+name).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("couldn't read cache %q: %w", name, err)
	}
	return value, true, nil
}

func (t *RedisTier) SaveCache(name string, value []byte) error {
	ctx, cancel := opCtx()
	defer cancel()
	return t.rdb.Set(ctx, redisKeyPrefix+"cache:"+name, value, 0).Err()
}

func (t *RedisTier) Close() error {
	return t.rdb.Close()
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
