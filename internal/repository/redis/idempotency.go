package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/coffeeshop/internal/repository"
)

const keyPrefix = "idempotency:order:"

// pending marks a reserved key whose order has not been stored yet.
const pending = ""

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore implements repository.IdempotencyStore using Redis.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a new Redis-backed idempotency store.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func key(userID, idempotencyKey string) string {
	return keyPrefix + userID + ":" + idempotencyKey
}

// Reserve claims the key with SETNX. A losing caller reads back the order id
// recorded by the winner, which is empty while the winner is still running.
func (s *IdempotencyStore) Reserve(ctx context.Context, userID, idempotencyKey string, ttl time.Duration) (string, bool, error) {
	k := key(userID, idempotencyKey)

	ok, err := s.client.SetNX(ctx, k, pending, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	orderID, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between the two calls; report it as in flight and let
			// the client retry.
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get idempotency key: %w", err)
	}
	return orderID, false, nil
}

// Complete records orderID under the key, restarting its TTL.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, idempotencyKey, orderID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key(userID, idempotencyKey), orderID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set idempotency key: %w", err)
	}
	return nil
}

// Release deletes the key so a failed request can be retried with it.
func (s *IdempotencyStore) Release(ctx context.Context, userID, idempotencyKey string) error {
	if err := s.client.Del(ctx, key(userID, idempotencyKey)).Err(); err != nil {
		return fmt.Errorf("redis del idempotency key: %w", err)
	}
	return nil
}
