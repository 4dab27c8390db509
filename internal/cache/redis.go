package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "voxcache:voices"

// RedisPersister keeps the snapshot under a single redis key. A SET replaces
// the whole value at once, so readers never observe a partial snapshot.
// Audio artifacts stay on local disk.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// RedisOption configures a RedisPersister.
type RedisOption func(*RedisPersister)

// WithKey sets the redis key holding the snapshot.
// Default is "voxcache:voices".
func WithKey(key string) RedisOption {
	return func(p *RedisPersister) {
		if key != "" {
			p.key = key
		}
	}
}

// NewRedisPersister creates a redis-backed persister.
func NewRedisPersister(client *redis.Client, opts ...RedisOption) *RedisPersister {
	p := &RedisPersister{
		client: client,
		key:    defaultRedisKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load fetches the snapshot. A missing key yields an empty snapshot.
func (p *RedisPersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Snapshot{Version: SnapshotVersion}, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return &snap, nil
}

// Save replaces the snapshot. Records never expire.
func (p *RedisPersister) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Key returns the redis key in use.
func (p *RedisPersister) Key() string {
	return p.key
}
