package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/coffeeshop/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

type idempotencyEntry struct {
	orderID   string
	expiresAt time.Time
}

// IdempotencyStore is the in-process counterpart of the Redis store.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

func (s *IdempotencyStore) Reserve(_ context.Context, userID, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userID + ":" + key
	if e, ok := s.entries[k]; ok && s.now().Before(e.expiresAt) {
		return e.orderID, false, nil
	}
	s.entries[k] = idempotencyEntry{expiresAt: s.now().Add(ttl)}
	return "", true, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, userID, key, orderID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID+":"+key] = idempotencyEntry{orderID: orderID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdempotencyStore) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID+":"+key)
	return nil
}
