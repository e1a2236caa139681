package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gigbook/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects to the given logical database and pings it.
func NewRedisClient(cfg *config.Config, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis db %d: %w", db, err)
	}
	return client, nil
}

// TokenRevoker records tokens that must no longer be accepted.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisTokenRevoker stores revoked token hashes in the auth cache database.
type RedisTokenRevoker struct {
	client *redis.Client
}

func NewRedisTokenRevoker(client *redis.Client) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client}
}

func (r *RedisTokenRevoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return r.client.Set(ctx, AuthCachePrefix+"revoked:"+HashToken(token), 1, ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, AuthCachePrefix+"revoked:"+HashToken(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryTokenRevoker keeps revoked token hashes in process, for single-node
// development runs without Redis.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{expires: make(map[string]time.Time)}
}

func (r *MemoryTokenRevoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[HashToken(token)] = time.Now().Add(ttl)
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := HashToken(token)
	exp, ok := r.expires[key]
	if ok && time.Now().After(exp) {
		delete(r.expires, key)
		return false, nil
	}
	return ok, nil
}
