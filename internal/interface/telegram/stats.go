package telegram

import (
	"sync"
	"sync/atomic"
	"time"
)

// BotStats holds runtime counters.
type BotStats struct {
	mu        sync.RWMutex
	startedAt time.Time

	received atomic.Int64
	handled  atomic.Int64
	skipped  atomic.Int64
	limited  atomic.Int64
	errors   atomic.Int64
	sent     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of BotStats.
type StatsSnapshot struct {
	StartedAt       time.Time `json:"started_at"`
	Uptime          string    `json:"uptime"`
	UpdatesReceived int64     `json:"updates_received"`
	UpdatesHandled  int64     `json:"updates_handled"`
	UpdatesSkipped  int64     `json:"updates_skipped"`
	RateLimited     int64     `json:"rate_limited"`
	Errors          int64     `json:"errors"`
	MessagesSent    int64     `json:"messages_sent"`
	Panics          int64     `json:"panics"`
	TrackedUsers    int       `json:"tracked_users"`
}

func newBotStats() *BotStats {
	return &BotStats{}
}

func (s *BotStats) markStarted(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = t
}

// Snapshot returns the current counters.
func (s *BotStats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()

	snap := StatsSnapshot{
		StartedAt:       started,
		UpdatesReceived: s.received.Load(),
		UpdatesHandled:  s.handled.Load(),
		UpdatesSkipped:  s.skipped.Load(),
		RateLimited:     s.limited.Load(),
		Errors:          s.errors.Load(),
		MessagesSent:    s.sent.Load(),
	}
	if !started.IsZero() {
		snap.Uptime = time.Since(started).Round(time.Second).String()
	}
	return snap
}
