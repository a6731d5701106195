package ticket

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsedStore remembers redeemed ticket ids until they would have expired anyway.
type UsedStore interface {
	// MarkUsed reports true the first time a jti is seen.
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ticket:used:"}
}

func (r *RedisStore) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+jti, 1, ttl).Result()
}

type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryStore) MarkUsed(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, id)
		}
	}
	if _, ok := m.seen[jti]; ok {
		return false, nil
	}
	m.seen[jti] = now.Add(ttl)
	return true, nil
}
