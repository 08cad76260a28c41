package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNonceNotFound is returned when no live nonce exists for an address.
var ErrNonceNotFound = errors.New("nonce not found or expired")

// NonceStore holds one outstanding login nonce per address.
type NonceStore interface {
	Put(ctx context.Context, address, nonce string, ttl time.Duration) error
	// Take returns and removes the nonce of address.
	Take(ctx context.Context, address string) (string, error)
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

// MemoryNonceStore is an in-process NonceStore.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]nonceEntry
	now     func() time.Time
}

var _ NonceStore = (*MemoryNonceStore)(nil)

// NewMemoryNonceStore creates an empty store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{entries: make(map[string]nonceEntry), now: time.Now}
}

func (s *MemoryNonceStore) Put(_ context.Context, address, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for addr, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, addr)
		}
	}
	s.entries[address] = nonceEntry{nonce: nonce, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	delete(s.entries, address)
	if !ok || s.now().After(e.expiresAt) {
		return "", ErrNonceNotFound
	}
	return e.nonce, nil
}

// RedisNonceStore keeps nonces in Redis with a key TTL.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

var _ NonceStore = (*RedisNonceStore)(nil)

// NewRedisNonceStore creates a store using keys "<prefix>nonce:<address>".
func NewRedisNonceStore(client redis.UniversalClient, prefix string) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: prefix}
}

func (s *RedisNonceStore) key(address string) string {
	return s.prefix + "nonce:" + address
}

func (s *RedisNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(address), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Take(ctx context.Context, address string) (string, error) {
	nonce, err := s.client.GetDel(ctx, s.key(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNonceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take nonce: %w", err)
	}
	return nonce, nil
}
