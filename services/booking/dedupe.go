package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"gigbook/utils"

	"github.com/go-redis/redis/v8"
)

// Deduper remembers recently succeeded actions so an identical resubmission
// can be answered as a no-op.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// actionKey fingerprints an action by booking, actor, target and payload.
func actionKey(req TransitionRequest) string {
	payload, _ := json.Marshal(struct {
		Proposal *ProposalInput
		Reason   string
	}{req.Proposal, req.Reason})
	sum := sha256.Sum256(payload)
	return req.BookingID + ":" + req.ActorID + ":" + string(req.Target) + ":" + hex.EncodeToString(sum[:8])
}

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, utils.DedupePrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Remember(ctx context.Context, key string, ttl time.Duration) error {
	return d.client.Set(ctx, utils.DedupePrefix+key, time.Now().Unix(), ttl).Err()
}

// MemoryDeduper is the in-process Deduper.
type MemoryDeduper struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{expires: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.expires[key]
	if !ok {
		return false, nil
	}
	if d.now().After(exp) {
		delete(d.expires, key)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDeduper) Remember(ctx context.Context, key string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expires[key] = d.now().Add(ttl)
	return nil
}
