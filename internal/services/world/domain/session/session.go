// Package session holds the per-user play-through record: current position in
// the scene graph, open flags, relationship state, and the optimistic
// concurrency version.
package session

import (
	"maps"
	"time"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
	"github.com/louisbranch/storyforge/internal/services/world/domain/stat"
)

// Relationship is the persisted stat state toward one entity: base axis
// values plus the tier ids derived from them.
type Relationship struct {
	Stats stat.Values       `json:"stats"`
	Tiers map[string]string `json:"tiers,omitempty"`
}

// Session is a per-user, per-scene play-through.
//
// Version is the optimistic-concurrency token: it increments iff
// CurrentNodeID, Flags, Relationships, or WorldTimeMillis actually changed,
// and only through the store APIs.
type Session struct {
	ID              string
	OwnerID         string
	WorldID         string // empty for world-less sessions
	CurrentNodeID   string
	WorldTimeMillis int64
	Flags           Flags
	Relationships   map[string]Relationship
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Event is an immutable record of one traversal step.
type Event struct {
	SessionID  string
	Seq        int64
	FromNodeID string
	ToNodeID   string
	EdgeID     string
	CreatedAt  time.Time
}

// New validates and builds a fresh session positioned at entryNodeID.
func New(id, ownerID, worldID, entryNodeID string, flags Flags, now time.Time) (Session, error) {
	if ownerID == "" {
		return Session{}, apperr.New(apperr.CodeSessionOwnerEmpty, "session owner is required")
	}
	return Session{
		ID:            id,
		OwnerID:       ownerID,
		WorldID:       worldID,
		CurrentNodeID: entryNodeID,
		Flags:         flags.clone(),
		Relationships: map[string]Relationship{},
		Version:       1,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

func cloneRelationships(relationships map[string]Relationship) map[string]Relationship {
	cloned := make(map[string]Relationship, len(relationships))
	for ref, rel := range relationships {
		cloned[ref] = Relationship{
			Stats: maps.Clone(rel.Stats),
			Tiers: maps.Clone(rel.Tiers),
		}
	}
	return cloned
}

func relationshipsEqual(a, b map[string]Relationship) bool {
	if len(a) != len(b) {
		return false
	}
	for ref, relA := range a {
		relB, ok := b[ref]
		if !ok {
			return false
		}
		if !maps.Equal(relA.Stats, relB.Stats) || !maps.Equal(relA.Tiers, relB.Tiers) {
			return false
		}
	}
	return true
}
