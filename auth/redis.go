// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// Redis key prefixes
const (
	revokedKeyPrefix    = "nucleotic:session:revoked:"
	descriptorKeyPrefix = "nucleotic:license:descriptor:"
)

// NewRedisClient connects to redisURL (redis://host:port or redis://host:port/db)
// and checks the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Revoker remembers logged-out session ids until their tokens expire
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevoker keeps revoked ids as expiring Redis keys, shared by every instance
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevoker creates a Revoker on client
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, now: time.Now}
}

// Revoke marks tokenID revoked until the given expiry
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked
func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryRevoker is the single-instance fallback used when no Redis is configured
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevoker creates an empty in-process Revoker
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke marks tokenID revoked until the given expiry
func (m *MemoryRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if until.After(now) {
		m.revoked[tokenID] = until
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked and has not expired yet
func (m *MemoryRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	return ok && exp.After(m.now()), nil
}

// DescriptorCache keeps license descriptors between requests so re-binding
// a session does not query the directory every time
type DescriptorCache interface {
	Get(ctx context.Context, licenseID primitive.ObjectID) (base.Descriptor, bool, error)
	Put(ctx context.Context, licenseID primitive.ObjectID, d base.Descriptor) error
	Invalidate(ctx context.Context, licenseID primitive.ObjectID) error
}

// RedisDescriptorCache stores descriptors as JSON with a TTL
type RedisDescriptorCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDescriptorCache creates a cache whose entries live for ttl
func NewRedisDescriptorCache(client *redis.Client, ttl time.Duration) *RedisDescriptorCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisDescriptorCache{client: client, ttl: ttl}
}

// Get returns the cached descriptor, if any
func (c *RedisDescriptorCache) Get(ctx context.Context, licenseID primitive.ObjectID) (base.Descriptor, bool, error) {
	var d base.Descriptor
	data, err := c.client.Get(ctx, descriptorKeyPrefix+licenseID.Hex()).Bytes()
	if err == redis.Nil {
		return d, false, nil
	}
	if err != nil {
		return d, false, fmt.Errorf("failed to read descriptor cache: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, false, fmt.Errorf("corrupt descriptor cache entry: %w", err)
	}
	return d, true, nil
}

// Put caches d for the license
func (c *RedisDescriptorCache) Put(ctx context.Context, licenseID primitive.ObjectID, d base.Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, descriptorKeyPrefix+licenseID.Hex(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write descriptor cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached descriptor of the license
func (c *RedisDescriptorCache) Invalidate(ctx context.Context, licenseID primitive.ObjectID) error {
	return c.client.Del(ctx, descriptorKeyPrefix+licenseID.Hex()).Err()
}
