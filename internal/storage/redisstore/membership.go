// Package redisstore keeps the cluster membership in a Redis hash.
//
// The layout is a single hash (default key "node") whose fields are node
// names and whose values are node addresses, so HSET gives upsert semantics
// for registration and HDEL removes an evicted node.
package redisstore

import (
	"context"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"

	"github.com/dreamware/quorra/internal/storage"
)

var Logger = logger.GetLogger("storage")

// DefaultKey is the hash holding the membership.
const DefaultKey = "node"

// Membership implements storage.MembershipStore on a Redis hash
type Membership struct {
	client *redis.Client
	key    string
}

var _ storage.MembershipStore = (*Membership)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr string
	DB   int
	Key  string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Membership, error) {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}
	Logger.Infof("membership store connected to redis %s (db %d, key %q)", opts.Addr, opts.DB, opts.Key)
	return &Membership{client: client, key: opts.Key}, nil
}

// Set upserts a node
func (m *Membership) Set(ctx context.Context, name, address string) error {
	return m.client.HSet(ctx, m.key, name, address).Err()
}

// Delete removes a node
func (m *Membership) Delete(ctx context.Context, name string) (bool, error) {
	n, err := m.client.HDel(ctx, m.key, name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// All returns every registered node
func (m *Membership) All(ctx context.Context) (map[string]string, error) {
	return m.client.HGetAll(ctx, m.key).Result()
}

// Close closes the Redis client
func (m *Membership) Close() error {
	return m.client.Close()
}
