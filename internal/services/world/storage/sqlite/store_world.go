package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/storyforge/internal/services/world/domain/world"
	"github.com/louisbranch/storyforge/internal/services/world/storage"
)

// CreateWorld stores a world and its clock-state row atomically.
func (s *Store) CreateWorld(ctx context.Context, w world.World) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("world id is required")
	}
	if strings.TrimSpace(w.OwnerID) == "" {
		return fmt.Errorf("world owner is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO worlds (id, owner_id, name, schema_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Name, w.SchemaID, toMillis(w.CreatedAt), toMillis(w.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert world: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO world_states (world_id, clock_ms, last_advanced_at) VALUES (?, 0, ?)`,
		w.ID, toMillis(w.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert world state: %w", err)
	}

	return tx.Commit()
}

// GetWorld returns the world record.
func (s *Store) GetWorld(ctx context.Context, worldID string) (world.World, error) {
	if err := ctx.Err(); err != nil {
		return world.World{}, err
	}

	var w world.World
	var createdAt, updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, owner_id, name, schema_id, created_at, updated_at FROM worlds WHERE id = ?`, worldID)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Name, &w.SchemaID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return world.World{}, fmt.Errorf("world %s: %w", worldID, storage.ErrNotFound)
		}
		return world.World{}, fmt.Errorf("get world: %w", err)
	}
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return w, nil
}

// GetWorldSnapshot returns the current clock state for a world.
func (s *Store) GetWorldSnapshot(ctx context.Context, worldID string) (world.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return world.Snapshot{}, err
	}

	var snapshot world.Snapshot
	var lastAdvanced int64
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT world_id, clock_ms, last_advanced_at FROM world_states WHERE world_id = ?`, worldID)
	if err := row.Scan(&snapshot.WorldID, &snapshot.ClockMillis, &lastAdvanced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A world without a state row has never been advanced.
			if _, err := s.GetWorld(ctx, worldID); err != nil {
				return world.Snapshot{}, err
			}
			return world.Snapshot{WorldID: worldID}, nil
		}
		return world.Snapshot{}, fmt.Errorf("get world state: %w", err)
	}
	snapshot.LastAdvancedAt = fromMillis(lastAdvanced)
	return snapshot, nil
}

// AdvanceWorldTime atomically increments a world clock and returns the new
// snapshot.
//
// The increment is a single upsert statement so two concurrent advances
// always sum: the state row is created lazily with clock=delta when missing,
// in the same atomic unit. Negative deltas are clamped to zero because time
// never rewinds.
func (s *Store) AdvanceWorldTime(ctx context.Context, worldID string, deltaMillis int64) (world.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return world.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return world.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	if deltaMillis < 0 {
		deltaMillis = 0
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return world.Snapshot{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM worlds WHERE id = ?`, worldID)
	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return world.Snapshot{}, fmt.Errorf("world %s: %w", worldID, storage.ErrNotFound)
		}
		return world.Snapshot{}, fmt.Errorf("check world: %w", err)
	}

	now := toMillis(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO world_states (world_id, clock_ms, last_advanced_at) VALUES (?, ?, ?)
		 ON CONFLICT(world_id) DO UPDATE SET
		     clock_ms = clock_ms + excluded.clock_ms,
		     last_advanced_at = excluded.last_advanced_at`,
		worldID, deltaMillis, now,
	); err != nil {
		return world.Snapshot{}, fmt.Errorf("advance world clock: %w", err)
	}

	var snapshot world.Snapshot
	var lastAdvanced int64
	row = tx.QueryRowContext(ctx,
		`SELECT world_id, clock_ms, last_advanced_at FROM world_states WHERE world_id = ?`, worldID)
	if err := row.Scan(&snapshot.WorldID, &snapshot.ClockMillis, &lastAdvanced); err != nil {
		return world.Snapshot{}, fmt.Errorf("read world clock: %w", err)
	}
	snapshot.LastAdvancedAt = fromMillis(lastAdvanced)

	if err := tx.Commit(); err != nil {
		return world.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snapshot, nil
}
