// internal/reservation/holds.go
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// HoldStore earmarks a freed copy for the patron at the head of the queue.
// Holds are soft state with a TTL: losing them degrades promotion back to an
// advisory signal, never corrupts the inventory.
type HoldStore interface {
	Place(ctx context.Context, bookID, userID uuid.UUID, ttl time.Duration) error
	Get(ctx context.Context, bookID uuid.UUID) (uuid.UUID, bool, error)
	Clear(ctx context.Context, bookID uuid.UUID) error
}

type redisHoldStore struct {
	rdb *redis.Client
}

// NewRedisHoldStore backs holds with Redis keys that expire on their own.
func NewRedisHoldStore(rdb *redis.Client) HoldStore {
	return &redisHoldStore{rdb: rdb}
}

func holdKey(bookID uuid.UUID) string {
	return "hold:" + bookID.String()
}

func (s *redisHoldStore) Place(ctx context.Context, bookID, userID uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, holdKey(bookID), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("place hold: %w", err)
	}
	return nil
}

func (s *redisHoldStore) Get(ctx context.Context, bookID uuid.UUID) (uuid.UUID, bool, error) {
	val, err := s.rdb.Get(ctx, holdKey(bookID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get hold: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse hold value: %w", err)
	}
	return userID, true, nil
}

func (s *redisHoldStore) Clear(ctx context.Context, bookID uuid.UUID) error {
	if err := s.rdb.Del(ctx, holdKey(bookID)).Err(); err != nil {
		return fmt.Errorf("clear hold: %w", err)
	}
	return nil
}
