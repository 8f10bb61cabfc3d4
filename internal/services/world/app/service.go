// Package app orchestrates world and session mutations: validate, apply one
// atomic store operation, derive stat state, refresh the cache, return.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
	"github.com/louisbranch/storyforge/internal/platform/id"
	"github.com/louisbranch/storyforge/internal/platform/timeouts"
	"github.com/louisbranch/storyforge/internal/services/world/cache"
	"github.com/louisbranch/storyforge/internal/services/world/domain/scene"
	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
	"github.com/louisbranch/storyforge/internal/services/world/domain/stat"
	"github.com/louisbranch/storyforge/internal/services/world/domain/world"
	"github.com/louisbranch/storyforge/internal/services/world/storage"
)

// DefaultRelationshipSchemaID names the stat group used to derive
// relationship tiers when none is configured.
const DefaultRelationshipSchemaID = "relationship"

// Config wires the service dependencies.
type Config struct {
	Worlds               storage.WorldStore
	Sessions             storage.SessionStore
	Graph                scene.Graph
	Cache                cache.RelationshipCache
	Definitions          map[string]stat.Definition
	RelationshipSchemaID string
}

// Service is the world-session engine consumed by the API layer.
//
// Every mutating call runs Validate, then one atomic store Apply, then Derive
// and Cache. A failure before Apply leaves no trace; a failure after Apply is
// logged and the committed state returned, because stale cache is acceptable
// and lost writes are not.
type Service struct {
	worlds             storage.WorldStore
	sessions           storage.SessionStore
	graph              scene.Graph
	cache              cache.RelationshipCache
	definitions        map[string]stat.Definition
	relationshipSchema string
	tracer             trace.Tracer
	now                func() time.Time
}

// New validates dependencies and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Worlds == nil {
		return nil, fmt.Errorf("world store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("scene graph is required")
	}
	relationshipCache := cfg.Cache
	if relationshipCache == nil {
		relationshipCache = cache.NewMemory(0, 0)
	}
	schemaID := cfg.RelationshipSchemaID
	if schemaID == "" {
		schemaID = DefaultRelationshipSchemaID
	}
	return &Service{
		worlds:             cfg.Worlds,
		sessions:           cfg.Sessions,
		graph:              cfg.Graph,
		cache:              relationshipCache,
		definitions:        cfg.Definitions,
		relationshipSchema: schemaID,
		tracer:             otel.Tracer("storyforge/world"),
		now:                time.Now,
	}, nil
}

// CreateWorld stores a new world owned by ownerID.
func (s *Service) CreateWorld(ctx context.Context, ownerID, name, schemaID string) (world.World, error) {
	ctx, span := s.tracer.Start(ctx, "WorldSessionService.CreateWorld")
	defer span.End()

	if ownerID == "" {
		return world.World{}, apperr.New(apperr.CodeWorldOwnerEmpty, "world owner is required")
	}
	if name == "" {
		return world.World{}, apperr.New(apperr.CodeWorldNameEmpty, "world name is required")
	}

	worldID, err := id.NewID()
	if err != nil {
		return world.World{}, fmt.Errorf("generate world id: %w", err)
	}
	now := s.now().UTC()
	w := world.World{
		ID:        worldID,
		OwnerID:   ownerID,
		Name:      name,
		SchemaID:  schemaID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.worlds.CreateWorld(ctx, w); err != nil {
		return world.World{}, fmt.Errorf("create world: %w", err)
	}
	return w, nil
}

// GetWorld returns the world record.
func (s *Service) GetWorld(ctx context.Context, worldID string) (world.World, error) {
	w, err := s.worlds.GetWorld(ctx, worldID)
	if err != nil {
		return world.World{}, mapWorldErr(err, worldID)
	}
	return w, nil
}

// GetWorldSnapshot returns the current clock state of a world.
func (s *Service) GetWorldSnapshot(ctx context.Context, worldID string) (world.Snapshot, error) {
	snapshot, err := s.worlds.GetWorldSnapshot(ctx, worldID)
	if err != nil {
		return world.Snapshot{}, mapWorldErr(err, worldID)
	}
	return snapshot, nil
}

// AdvanceWorldTime atomically advances a world clock by deltaSeconds and
// returns the new snapshot. Negative deltas advance by zero.
func (s *Service) AdvanceWorldTime(ctx context.Context, worldID string, deltaSeconds float64) (world.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "WorldSessionService.AdvanceWorldTime",
		trace.WithAttributes(attribute.String("world_id", worldID)))
	defer span.End()

	snapshot, err := s.worlds.AdvanceWorldTime(ctx, worldID, world.MillisFromSeconds(deltaSeconds))
	if err != nil {
		return world.Snapshot{}, mapWorldErr(err, worldID)
	}
	return snapshot, nil
}

// CreateSessionInput describes a new play session.
type CreateSessionInput struct {
	OwnerID string
	SceneID string
	WorldID string
	Flags   session.Flags
}

// CreateSession starts a session at the scene's entry node. Binding a session
// to a world requires the caller to own that world; the ownership check
// happens here, not in the store, so the store stays reusable for world-less
// sessions.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "WorldSessionService.CreateSession",
		trace.WithAttributes(attribute.String("scene_id", input.SceneID)))
	defer span.End()

	entryNodeID, err := s.graph.EntryNode(ctx, input.SceneID)
	if err != nil {
		return session.Session{}, err
	}

	if input.WorldID != "" {
		w, err := s.worlds.GetWorld(ctx, input.WorldID)
		if err != nil {
			return session.Session{}, mapWorldErr(err, input.WorldID)
		}
		if w.OwnerID != input.OwnerID {
			return session.Session{}, apperr.WithMetadata(apperr.CodeWorldAccessDenied,
				"caller does not own world", map[string]string{"world_id": input.WorldID})
		}
	}

	sessionID, err := id.NewID()
	if err != nil {
		return session.Session{}, fmt.Errorf("generate session id: %w", err)
	}
	sess, err := session.New(sessionID, input.OwnerID, input.WorldID, entryNodeID, input.Flags, s.now())
	if err != nil {
		return session.Session{}, err
	}

	created, err := s.sessions.CreateSession(ctx, sess)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return session.Session{}, mapWorldErr(err, input.WorldID)
		}
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

// AdvanceSession moves a session along the edge with the given id.
func (s *Service) AdvanceSession(ctx context.Context, sessionID, edgeID string) (session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "WorldSessionService.AdvanceSession",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("edge_id", edgeID),
		))
	defer span.End()

	edge, err := s.graph.Edge(ctx, edgeID)
	if err != nil {
		return session.Session{}, err
	}

	advanced, err := s.sessions.AdvanceSession(ctx, sessionID, edge)
	if err != nil {
		return session.Session{}, mapSessionErr(err, sessionID, nil)
	}
	return advanced, nil
}

// UpdateSession applies patch under optimistic concurrency. When the patch
// touched relationship data, the committed base values are pushed through
// stat resolution and the cache is refreshed with the result; failures in
// that tail are logged and the committed session returned.
func (s *Service) UpdateSession(ctx context.Context, sessionID string, expectedVersion *int64, patch session.Patch) (session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "WorldSessionService.UpdateSession",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	updated, err := s.sessions.UpdateSession(ctx, sessionID, expectedVersion, patch)
	if err != nil {
		return updated, mapSessionErr(err, sessionID, &updated)
	}

	if patch.Relationships != nil {
		derived, deriveErr := s.deriveRelationships(updated.Relationships)
		if deriveErr != nil {
			log.Printf("relationship derive failed session_id=%s error=%v", sessionID, deriveErr)
			return updated, nil
		}
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.CacheOp)
		defer cancel()
		if cacheErr := s.cache.Refresh(cacheCtx, sessionID, derived); cacheErr != nil {
			// The store mutation committed; a cache failure must never
			// surface as a failed mutation.
			log.Printf("relationship cache refresh failed session_id=%s error=%v", sessionID, cacheErr)
		}
		updated.Relationships = derived
	}
	return updated, nil
}

// GetSession returns a session. With normalize set, relationship values are
// clamped and derived tier ids attached, read through the cache.
func (s *Service) GetSession(ctx context.Context, sessionID string, normalize bool) (session.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, mapSessionErr(err, sessionID, nil)
	}
	if !normalize {
		return sess, nil
	}

	compute := func(ctx context.Context) (map[string]session.Relationship, error) {
		return s.deriveRelationships(sess.Relationships)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, timeouts.CacheOp)
	defer cancel()
	result, err := s.cache.GetOrCompute(cacheCtx, sessionID, compute, true)
	if err != nil {
		// Cache trouble degrades to a direct computation.
		log.Printf("relationship cache read failed session_id=%s error=%v", sessionID, err)
		derived, deriveErr := s.deriveRelationships(sess.Relationships)
		if deriveErr != nil {
			return session.Session{}, deriveErr
		}
		sess.Relationships = derived
		return sess, nil
	}
	sess.Relationships = result.Relationships
	return sess, nil
}

// ListSessionEvents returns up to limit traversal events for a session.
func (s *Service) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]session.Event, error) {
	events, err := s.sessions.ListSessionEvents(ctx, sessionID, limit)
	if err != nil {
		return nil, mapSessionErr(err, sessionID, nil)
	}
	return events, nil
}

// ResolveRelationship resolves one session relationship with transient
// modifiers applied: additive first, then multiplicative, then clamp and
// tier. Modifiers are never persisted.
func (s *Service) ResolveRelationship(ctx context.Context, sessionID, entityRef string, modifiers []stat.Modifier) (session.Relationship, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return session.Relationship{}, mapSessionErr(err, sessionID, nil)
	}
	rel, ok := sess.Relationships[entityRef]
	if !ok {
		return session.Relationship{}, apperr.WithMetadata(apperr.CodeNotFound,
			"relationship not found", map[string]string{
				"session_id": sessionID,
				"entity_ref": entityRef,
			})
	}

	def, ok := s.definitions[s.relationshipSchema]
	if !ok {
		return rel, nil
	}
	resolved, err := stat.ResolveWithModifiers(rel.Stats, def, stat.ActiveModifiers(modifiers, s.now()))
	if err != nil {
		return session.Relationship{}, err
	}
	return session.Relationship{Stats: resolved.Values, Tiers: resolved.Tiers}, nil
}

// deriveRelationships normalizes base relationship values against the
// configured stat group. Without a configured group the base values pass
// through untouched.
func (s *Service) deriveRelationships(relationships map[string]session.Relationship) (map[string]session.Relationship, error) {
	def, ok := s.definitions[s.relationshipSchema]
	if !ok {
		return relationships, nil
	}
	derived := make(map[string]session.Relationship, len(relationships))
	for ref, rel := range relationships {
		resolved, err := stat.Normalize(rel.Stats, def)
		if err != nil {
			return nil, err
		}
		derived[ref] = session.Relationship{Stats: resolved.Values, Tiers: resolved.Tiers}
	}
	return derived, nil
}

func mapWorldErr(err error, worldID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.WrapWithMetadata(apperr.CodeWorldNotFound, "world not found",
			map[string]string{"world_id": worldID}, err)
	}
	return err
}

// mapSessionErr translates store sentinels into domain errors. current, when
// non-nil, carries the session state returned alongside a version conflict so
// callers can decide to merge or overwrite.
func mapSessionErr(err error, sessionID string, current *session.Session) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.WrapWithMetadata(apperr.CodeSessionNotFound, "session not found",
			map[string]string{"session_id": sessionID}, err)
	case errors.Is(err, storage.ErrVersionConflict):
		metadata := map[string]string{"session_id": sessionID}
		if current != nil {
			metadata["current_version"] = fmt.Sprintf("%d", current.Version)
		}
		return apperr.WrapWithMetadata(apperr.CodeVersionConflict, "session version conflict", metadata, err)
	case errors.Is(err, storage.ErrInvalidEdge):
		return apperr.WrapWithMetadata(apperr.CodeInvalidEdgeForCurrentNode, "edge does not start at current node",
			map[string]string{"session_id": sessionID}, err)
	default:
		return err
	}
}
