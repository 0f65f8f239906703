package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
)

// DialogStore implements assistant.DialogStore as a capped Redis list
// of JSON-encoded exchanges, oldest first.
type DialogStore struct {
	cache   *Cache
	maxSize int64
	ttl     time.Duration
}

// NewDialogStore creates a dialog store keeping at most maxSize exchanges per user.
func NewDialogStore(cache *Cache, maxSize int, ttl time.Duration) *DialogStore {
	if maxSize <= 0 {
		maxSize = 20
	}
	if ttl <= 0 {
		ttl = TTLDialog
	}
	return &DialogStore{cache: cache, maxSize: int64(maxSize), ttl: ttl}
}

// Load returns up to limit most recent exchanges in chronological order.
func (s *DialogStore) Load(ctx context.Context, userID int64, limit int) ([]message.Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := s.cache.client.LRange(ctx, DialogKey(userID), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load dialog: %w", err)
	}

	exchanges := make([]message.Exchange, 0, len(raw))
	for _, item := range raw {
		var ex message.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

// Append adds an exchange, trims the list and refreshes its TTL in one
// MULTI/EXEC transaction.
func (s *DialogStore) Append(ctx context.Context, userID int64, exchange message.Exchange) error {
	data, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	key := DialogKey(userID)
	_, err = s.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -s.maxSize, -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append dialog: %w", err)
	}
	return nil
}

// Clear forgets the user's dialog.
func (s *DialogStore) Clear(ctx context.Context, userID int64) error {
	return s.cache.Delete(ctx, DialogKey(userID))
}
