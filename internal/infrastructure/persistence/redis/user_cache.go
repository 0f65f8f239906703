package redis

import (
	"context"
	"time"

	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// cachedUser is the cached form of a user. The password hash is never cached.
type cachedUser struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	TelegramID int64  `json:"telegram_id"`
	Level      int    `json:"level"`
}

// UserCache caches users by Telegram ID.
type UserCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewUserCache creates a new UserCache.
func NewUserCache(cache *Cache, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = TTLUserCache
	}
	return &UserCache{cache: cache, ttl: ttl}
}

// GetByTelegramID returns a cached user. Returns ErrCacheMiss if absent.
func (c *UserCache) GetByTelegramID(ctx context.Context, telegramID user.TelegramID) (*user.User, error) {
	var cu cachedUser
	if err := c.cache.Get(ctx, UserTelegramKey(int64(telegramID)), &cu); err != nil {
		return nil, err
	}

	tg := user.TelegramID(cu.TelegramID)
	return &user.User{
		ID:         cu.ID,
		Username:   cu.Username,
		TelegramID: &tg,
		Level:      cu.Level,
	}, nil
}

// Set caches a user that has a linked Telegram account.
func (c *UserCache) Set(ctx context.Context, u *user.User) error {
	if !u.HasTelegram() {
		return nil
	}
	return c.cache.Set(ctx, UserTelegramKey(int64(*u.TelegramID)), cachedUser{
		ID:         u.ID,
		Username:   u.Username,
		TelegramID: int64(*u.TelegramID),
		Level:      u.Level,
	}, c.ttl)
}

// Invalidate drops the cached user.
func (c *UserCache) Invalidate(ctx context.Context, telegramID user.TelegramID) error {
	return c.cache.Delete(ctx, UserTelegramKey(int64(telegramID)))
}
