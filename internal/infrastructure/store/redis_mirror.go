// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL bounds how long a mirrored session survives without writes.
const DefaultSessionTTL = 24 * time.Hour

// RedisClient is the subset of *redis.Client used by [RedisMirror].
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisMirror stores memory-adapter snapshots in Redis under a session id.
type RedisMirror struct {
	client  RedisClient
	session string
	ttl     time.Duration
}

// NewRedisMirror creates a mirror scoped to session. A non-positive ttl
// selects DefaultSessionTTL.
func NewRedisMirror(client RedisClient, session string, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisMirror{client: client, session: session, ttl: ttl}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (m *RedisMirror) key(collection string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, m.session, collection)
}

// Load returns the mirrored snapshot, or nil when the session has none.
func (m *RedisMirror) Load(ctx context.Context, collection string) ([]byte, error) {
	data, err := m.client.Get(ctx, m.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// Save stores the snapshot and refreshes the session TTL.
func (m *RedisMirror) Save(ctx context.Context, collection string, data []byte) error {
	return m.client.Set(ctx, m.key(collection), data, m.ttl).Err()
}

// Ping checks the Redis connection.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
