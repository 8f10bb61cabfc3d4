package cache

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
)

// memoryEntry tracks the cached value and the per-session advisory lock.
type memoryEntry struct {
	relationships map[string]session.Relationship
	hasValue      bool
	freshUntil    time.Time
	lockedUntil   time.Time
}

// Memory is the in-process RelationshipCache used when no shared cache is
// configured. Absence of a distributed cache degrades to "always recompute
// in this process", never to an error.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	freshTTL time.Duration
	lockTTL  time.Duration
	now      func() time.Time
}

// NewMemory builds an in-process cache with the given TTLs. Non-positive
// TTLs fall back to the defaults.
func NewMemory(freshTTL, lockTTL time.Duration) *Memory {
	if freshTTL <= 0 {
		freshTTL = DefaultFreshTTL
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Memory{
		entries:  make(map[string]*memoryEntry),
		freshTTL: freshTTL,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

func (m *Memory) entry(sessionID string) *memoryEntry {
	entry, ok := m.entries[sessionID]
	if !ok {
		entry = &memoryEntry{}
		m.entries[sessionID] = entry
	}
	return entry
}

// GetOrCompute implements RelationshipCache.
func (m *Memory) GetOrCompute(ctx context.Context, sessionID string, compute ComputeFunc, wait bool) (Result, error) {
	const pollInterval = 25 * time.Millisecond

	for {
		m.mu.Lock()
		now := m.now()
		entry := m.entry(sessionID)

		if entry.hasValue && now.Before(entry.freshUntil) {
			value := cloneRelationships(entry.relationships)
			m.mu.Unlock()
			return Result{Relationships: value}, nil
		}

		if now.After(entry.lockedUntil) {
			// Acquire the advisory lock and compute outside it.
			entry.lockedUntil = now.Add(m.lockTTL)
			m.mu.Unlock()
			return m.computeAndStore(ctx, sessionID, compute)
		}

		if !wait {
			if entry.hasValue {
				value := cloneRelationships(entry.relationships)
				m.mu.Unlock()
				return Result{Relationships: value, Stale: true}, nil
			}
			m.mu.Unlock()
			// No last-known value to serve; compute despite the lock.
			return m.computeAndStore(ctx, sessionID, compute)
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *Memory) computeAndStore(ctx context.Context, sessionID string, compute ComputeFunc) (Result, error) {
	relationships, err := compute(ctx)

	m.mu.Lock()
	entry := m.entry(sessionID)
	entry.lockedUntil = time.Time{}
	if err == nil {
		entry.relationships = cloneRelationships(relationships)
		entry.hasValue = true
		entry.freshUntil = m.now().Add(m.freshTTL)
	}
	m.mu.Unlock()

	if err != nil {
		return Result{}, err
	}
	return Result{Relationships: relationships}, nil
}

// Refresh implements RelationshipCache.
func (m *Memory) Refresh(_ context.Context, sessionID string, relationships map[string]session.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entry(sessionID)
	entry.relationships = cloneRelationships(relationships)
	entry.hasValue = true
	entry.freshUntil = m.now().Add(m.freshTTL)
	return nil
}

func cloneRelationships(relationships map[string]session.Relationship) map[string]session.Relationship {
	cloned := make(map[string]session.Relationship, len(relationships))
	for ref, rel := range relationships {
		stats := make(map[string]float64, len(rel.Stats))
		for name, value := range rel.Stats {
			stats[name] = value
		}
		tiers := make(map[string]string, len(rel.Tiers))
		for name, tier := range rel.Tiers {
			tiers[name] = tier
		}
		cloned[ref] = session.Relationship{Stats: stats, Tiers: tiers}
	}
	return cloned
}
