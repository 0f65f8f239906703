// Package middleware contains guards applied to every Telegram update before
// it reaches the message router.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Ограничивает частоту сообщений от одного пользователя (token bucket из
// x/time/rate). Лимитеры неактивных пользователей периодически удаляются.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per user.
	RequestsPerMinute int

	// BurstSize is how many messages may arrive at once.
	BurstSize int

	// IdleTTL is how long an unused limiter is kept.
	IdleTTL time.Duration

	// CleanupInterval is how often idle limiters are dropped.
	CleanupInterval time.Duration

	// WhitelistedUsers are exempt from limiting.
	WhitelistedUsers map[int64]bool
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		IdleTTL:           10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
		WhitelistedUsers:  make(map[int64]bool),
	}
}

// RateLimiter implements per-user rate limiting.
type RateLimiter struct {
	config RateLimitConfig
	limit  rate.Limit

	mu       sync.Mutex
	limiters map[int64]*userLimiter

	now func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. Call Run to enable cleanup.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 20
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:   config,
		limit:    rate.Every(time.Minute / time.Duration(config.RequestsPerMinute)),
		limiters: make(map[int64]*userLimiter),
		now:      time.Now,
	}
}

// Check reports whether a message from telegramID may be processed now.
// When it may not, retryAfter says how long to wait.
func (rl *RateLimiter) Check(telegramID int64) (allowed bool, retryAfter time.Duration) {
	if rl.config.WhitelistedUsers[telegramID] {
		return true, 0
	}

	now := rl.now()

	rl.mu.Lock()
	ul, ok := rl.limiters[telegramID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.config.BurstSize)}
		rl.limiters[telegramID] = ul
	}
	ul.lastSeen = now
	rl.mu.Unlock()

	r := ul.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		// Отклонённое сообщение не должно расходовать токен.
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops limiters idle for longer than IdleTTL and returns how many
// were dropped.
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.config.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	dropped := 0
	for id, ul := range rl.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(rl.limiters, id)
			dropped++
		}
	}
	return dropped
}

// Tracked returns the number of users with a live limiter.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Run performs periodic cleanup until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// RateLimitedMessage is the reply sent to a limited user.
func RateLimitedMessage(retryAfter time.Duration) string {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("Too many messages. Try again in %d s.", seconds)
}
