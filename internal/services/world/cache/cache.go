// Package cache memoizes derived relationship values per session.
//
// The cache is never the source of truth: entries are produced after a
// successful store mutation or computed read-through on miss, and every cache
// failure is downgraded at this boundary to a log line plus recompute. A
// failed mutation must never be caused by the cache.
package cache

import (
	"context"
	"time"

	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
)

// DefaultFreshTTL bounds how long a computed value is served without
// recomputation.
const DefaultFreshTTL = 30 * time.Second

// DefaultLockTTL bounds the advisory compute lock. Short-lived by design so
// a crashed holder only delays recomputation by single-digit seconds.
const DefaultLockTTL = 5 * time.Second

// ComputeFunc produces the fresh relationship values for a session.
type ComputeFunc func(ctx context.Context) (map[string]session.Relationship, error)

// Result carries cached relationship values. Stale marks a last-known value
// served while another caller holds the compute lock.
type Result struct {
	Relationships map[string]session.Relationship
	Stale         bool
}

// RelationshipCache memoizes derived relationship values keyed by session id.
//
// Entries are partitioned per session; there is no cross-session locking.
type RelationshipCache interface {
	// GetOrCompute returns the cached value when fresh. On miss it takes a
	// short-TTL advisory lock and computes; when the lock is held
	// elsewhere, wait=true polls briefly for the fresh value while
	// wait=false returns the last known value tagged stale. Two callers
	// never observe different fresh values for one session at the same
	// instant.
	GetOrCompute(ctx context.Context, sessionID string, compute ComputeFunc, wait bool) (Result, error)
	// Refresh stores a freshly derived value after a successful store
	// mutation. Callers must refresh with the new value rather than
	// invalidate, so a concurrent reader cannot repopulate the cache with
	// the pre-mutation value.
	Refresh(ctx context.Context, sessionID string, relationships map[string]session.Relationship) error
}
