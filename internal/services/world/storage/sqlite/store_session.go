package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/storyforge/internal/services/world/domain/scene"
	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
	"github.com/louisbranch/storyforge/internal/services/world/storage"
)

const sessionColumns = `id, owner_id, world_id, current_node_id, world_time_ms, flags, relationships, version, created_at, updated_at`

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSession(row sessionScanner) (session.Session, error) {
	var sess session.Session
	var worldID sql.NullString
	var flagsJSON, relationshipsJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&sess.ID, &sess.OwnerID, &worldID, &sess.CurrentNodeID, &sess.WorldTimeMillis,
		&flagsJSON, &relationshipsJSON, &sess.Version, &createdAt, &updatedAt,
	); err != nil {
		return session.Session{}, err
	}

	if worldID.Valid {
		sess.WorldID = worldID.String
	}
	if err := json.Unmarshal([]byte(flagsJSON), &sess.Flags); err != nil {
		return session.Session{}, fmt.Errorf("decode flags: %w", err)
	}
	if err := json.Unmarshal([]byte(relationshipsJSON), &sess.Relationships); err != nil {
		return session.Session{}, fmt.Errorf("decode relationships: %w", err)
	}
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return sess, nil
}

func encodeSessionMaps(sess session.Session) (flagsJSON, relationshipsJSON string, err error) {
	flags := sess.Flags
	if flags == nil {
		flags = session.Flags{}
	}
	relationships := sess.Relationships
	if relationships == nil {
		relationships = map[string]session.Relationship{}
	}

	flagsBytes, err := json.Marshal(flags)
	if err != nil {
		return "", "", fmt.Errorf("encode flags: %w", err)
	}
	relationshipsBytes, err := json.Marshal(relationships)
	if err != nil {
		return "", "", fmt.Errorf("encode relationships: %w", err)
	}
	return string(flagsBytes), string(relationshipsBytes), nil
}

func nullableWorldID(worldID string) sql.NullString {
	if worldID == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: worldID, Valid: true}
}

// CreateSession stores a new session at version 1. The referenced world must
// exist; ownership checks belong to the service layer so the store stays
// reusable for world-less sessions.
func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return session.Session{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}

	flagsJSON, relationshipsJSON, err := encodeSessionMaps(sess)
	if err != nil {
		return session.Session{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if sess.WorldID != "" {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT 1 FROM worlds WHERE id = ?`, sess.WorldID)
		if err := row.Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return session.Session{}, fmt.Errorf("world %s: %w", sess.WorldID, storage.ErrNotFound)
			}
			return session.Session{}, fmt.Errorf("check world: %w", err)
		}
	}

	sess.Version = 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, nullableWorldID(sess.WorldID), sess.CurrentNodeID, sess.WorldTimeMillis,
		flagsJSON, relationshipsJSON, sess.Version, toMillis(sess.CreatedAt), toMillis(sess.UpdatedAt),
	); err != nil {
		return session.Session{}, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

// GetSession returns the session record.
func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// AdvanceSession moves a session along edge. Node mutation, event append,
// and version bump commit as one atomic unit; the version-guarded UPDATE
// turns a concurrent advance into ErrVersionConflict instead of a lost write.
func (s *Store) AdvanceSession(ctx context.Context, sessionID string, edge scene.Edge) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return session.Session{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}

	if sess.CurrentNodeID != edge.From {
		return session.Session{}, fmt.Errorf("edge %s starts at %s but session is at %s: %w",
			edge.ID, edge.From, sess.CurrentNodeID, storage.ErrInvalidEdge)
	}

	now := s.now()
	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET current_node_id = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		edge.To, toMillis(now), sessionID, sess.Version,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("advance session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return session.Session{}, fmt.Errorf("advance session rows: %w", err)
	}
	if affected == 0 {
		return session.Session{}, fmt.Errorf("session %s: %w", sessionID, storage.ErrVersionConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_events (session_id, seq, from_node_id, to_node_id, edge_id, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM session_events WHERE session_id = ?), ?, ?, ?, ?)`,
		sessionID, sessionID, edge.From, edge.To, edge.ID, toMillis(now),
	); err != nil {
		return session.Session{}, fmt.Errorf("append session event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit: %w", err)
	}

	sess.CurrentNodeID = edge.To
	sess.Version++
	sess.UpdatedAt = now.UTC()
	return sess, nil
}

// UpdateSession applies patch under optimistic concurrency.
//
// The version-guarded UPDATE is the atomic primitive: when two writers read
// version N, exactly one commits N+1 and the other observes zero affected
// rows and gets ErrVersionConflict with the current session attached. No-op
// patches never burn a version.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, expectedVersion *int64, patch session.Patch) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return session.Session{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}

	if expectedVersion != nil && *expectedVersion != sess.Version {
		return sess, fmt.Errorf("expected version %d, current is %d: %w",
			*expectedVersion, sess.Version, storage.ErrVersionConflict)
	}

	patched, changed, err := session.ApplyPatch(sess, patch)
	if err != nil {
		return session.Session{}, err
	}
	if !changed {
		return sess, nil
	}

	flagsJSON, relationshipsJSON, err := encodeSessionMaps(patched)
	if err != nil {
		return session.Session{}, err
	}

	now := s.now()
	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET world_time_ms = ?, flags = ?, relationships = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		patched.WorldTimeMillis, flagsJSON, relationshipsJSON, toMillis(now), sessionID, sess.Version,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return session.Session{}, fmt.Errorf("update session rows: %w", err)
	}
	if affected == 0 {
		return sess, fmt.Errorf("session %s: %w", sessionID, storage.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit: %w", err)
	}

	patched.Version = sess.Version + 1
	patched.UpdatedAt = now.UTC()
	return patched, nil
}

// ListSessionEvents returns up to limit traversal events in seq order.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, seq, from_node_id, to_node_id, edge_id, created_at
		 FROM session_events WHERE session_id = ? ORDER BY seq ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		var event session.Event
		var createdAt int64
		if err := rows.Scan(&event.SessionID, &event.Seq, &event.FromNodeID, &event.ToNodeID, &event.EdgeID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}
	return events, nil
}

// ListSessionIDs returns all session ids for maintenance jobs.
func (s *Store) ListSessionIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session ids: %w", err)
	}
	return ids, nil
}

// TrimEvents deletes all but the keepLast most recent events for a session.
func (s *Store) TrimEvents(ctx context.Context, sessionID string, keepLast int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keepLast < 0 {
		keepLast = 0
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM session_events
		 WHERE session_id = ?
		   AND seq <= (SELECT COALESCE(MAX(seq), 0) FROM session_events WHERE session_id = ?) - ?`,
		sessionID, sessionID, keepLast,
	)
	if err != nil {
		return 0, fmt.Errorf("trim session events: %w", err)
	}
	trimmed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim session events rows: %w", err)
	}
	return trimmed, nil
}
