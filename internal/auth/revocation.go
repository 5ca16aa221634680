package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers logged-out token ids until their natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationStore keeps revoked ids in process.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore builds an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke marks tokenID revoked until the given time.
func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.now()) {
		s.revoked[tokenID] = until
	}
	return nil
}

// IsRevoked reports whether tokenID is still revoked.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	until, ok := s.revoked[tokenID]
	s.mu.RUnlock()
	return ok && s.now().Before(until), nil
}

// Prune drops entries whose tokens have expired anyway.
func (s *MemoryRevocationStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
			removed++
		}
	}
	return removed
}

// StartPruning runs Prune on an interval until ctx is done.
func (s *MemoryRevocationStore) StartPruning(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Prune()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RedisRevocationStore shares revocations across instances.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore builds a store under the given key prefix.
func NewRedisRevocationStore(client *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "auth:revoked"
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisRevocationStore) key(tokenID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenID)
}

// Revoke stores the id with a TTL matching the token's remaining lifetime.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks for the id key.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
