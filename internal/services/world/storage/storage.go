// Package storage defines the persistence interfaces for worlds and
// sessions.
//
// Every mutating method is a single atomic store operation: the underlying
// implementation must perform its read-modify-write inside one transaction or
// statement, never as an application-level read-then-write pair.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/storyforge/internal/services/world/domain/scene"
	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
	"github.com/louisbranch/storyforge/internal/services/world/domain/world"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict indicates a versioned write lost to a concurrent writer.
// The caller must re-read before retrying; stores never auto-retry.
var ErrVersionConflict = errors.New("session version conflict")

// ErrInvalidEdge indicates an advance whose edge does not start at the
// session's current node.
var ErrInvalidEdge = errors.New("edge does not start at current node")

// WorldStore persists worlds and their clock state.
type WorldStore interface {
	// CreateWorld stores the world and its clock-state row in one
	// transactional unit.
	CreateWorld(ctx context.Context, w world.World) error
	// GetWorld returns the world record.
	GetWorld(ctx context.Context, worldID string) (world.World, error)
	// GetWorldSnapshot returns the current clock state.
	GetWorldSnapshot(ctx context.Context, worldID string) (world.Snapshot, error)
	// AdvanceWorldTime atomically increments the world clock. Negative
	// deltas are treated as zero; a missing clock-state row is lazily
	// created with clock=delta inside the same atomic unit. Returns
	// ErrNotFound when the world itself is absent.
	AdvanceWorldTime(ctx context.Context, worldID string, deltaMillis int64) (world.Snapshot, error)
}

// SessionStore persists sessions and their traversal events.
type SessionStore interface {
	// CreateSession stores a new session at version 1. When the session
	// references a world, the world row must exist (ownership is the
	// service's concern, not the store's).
	CreateSession(ctx context.Context, sess session.Session) (session.Session, error)
	// GetSession returns the session record.
	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	// AdvanceSession moves the session along edge: node mutation, event
	// append, and version bump commit as one atomic unit. Returns
	// ErrInvalidEdge when edge.From is not the current node.
	AdvanceSession(ctx context.Context, sessionID string, edge scene.Edge) (session.Session, error)
	// UpdateSession applies patch under optimistic concurrency. The
	// version increments iff something changed. On ErrVersionConflict the
	// current session is returned alongside the error so callers can
	// merge or overwrite.
	UpdateSession(ctx context.Context, sessionID string, expectedVersion *int64, patch session.Patch) (session.Session, error)
	// ListSessionEvents returns up to limit traversal events in seq order.
	ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]session.Event, error)
	// ListSessionIDs returns all session ids, for maintenance jobs.
	ListSessionIDs(ctx context.Context) ([]string, error)
	// TrimEvents deletes all but the keepLast most recent events for a
	// session and reports how many rows were removed. Normal writes never
	// pay this cost inline; a periodic job calls it.
	TrimEvents(ctx context.Context, sessionID string, keepLast int) (int64, error)
}
