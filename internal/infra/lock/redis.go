// Package lock provides a Redis lease so that only one replica runs a
// reminder cycle per tick.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultKey = "crm:reminders:cycle-lock"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logrus.Entry
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, logger *logrus.Entry) *RedisLocker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.WithField("component", "cycle_lock"),
	}
}

// NewRedisClient creates a client and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// TryLock sets the key if absent with a fresh token. The lease expires on
// its own after ttl if the holder dies mid-cycle.
func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.WithError(err).Warn("Failed to release cycle lock, it will expire on its own")
		}
	}
	return unlock, true, nil
}
