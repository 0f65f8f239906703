package router

import "sync/atomic"

// Stats counts dispatch outcomes. Safe for concurrent use.
type Stats struct {
	dispatched atomic.Int64
	handled    atomic.Int64
	soft       atomic.Int64
	failed     atomic.Int64
	unmatched  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Dispatched int64 `json:"dispatched"`
	Handled    int64 `json:"handled"`
	SoftErrors int64 `json:"soft_errors"`
	Failed     int64 `json:"failed"`
	Unmatched  int64 `json:"unmatched"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Dispatched: s.dispatched.Load(),
		Handled:    s.handled.Load(),
		SoftErrors: s.soft.Load(),
		Failed:     s.failed.Load(),
		Unmatched:  s.unmatched.Load(),
	}
}
