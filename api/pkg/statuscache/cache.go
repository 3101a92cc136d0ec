// Package statuscache implements the keyed, TTL'd robot status store
// described in spec.md §4.4: a remote backend when configured, an
// in-process map otherwise, both honoring the same Cache interface so
// callers never branch on which is active.
package statuscache

import (
	"context"
	"time"
)

// Record is the value written by Update and returned by Get and
// ListOnlineStatuses.
type Record struct {
	RobotID   string                 `json:"robot_id"`
	Status    map[string]interface{} `json:"status"`
	LastSeen  time.Time              `json:"last_seen"`
	SessionID string                 `json:"session_id,omitempty"`
}

// Health reports backend identity, reachability, and cumulative
// counters, per spec.md §4.4's health() contract.
type Health struct {
	Backend string
	Healthy bool
	Hits    int64
	Misses  int64
	Updates int64
	Evictions int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when nothing has been
// read yet.
func (h Health) HitRate() float64 {
	total := h.Hits + h.Misses
	if total == 0 {
		return 0
	}
	return float64(h.Hits) / float64(total)
}

// DefaultTTL is used by Update when no explicit ttl is given.
const DefaultTTL = 30 * time.Second

// Cache is the dual-backend contract both statuscache implementations
// satisfy.
type Cache interface {
	Update(ctx context.Context, robotID string, status map[string]interface{}, sessionID string, ttl time.Duration) error
	Get(ctx context.Context, robotID string) (*Record, error)
	ListOnline(ctx context.Context) ([]string, error)
	ListOnlineStatuses(ctx context.Context) ([]Record, error)
	Remove(ctx context.Context, robotID string) error
	InvalidateSession(ctx context.Context, sessionID string) error
	HealthCheck(ctx context.Context) Health
}
