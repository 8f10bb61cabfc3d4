package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/storyforge/internal/services/world/domain/world"
	"github.com/louisbranch/storyforge/internal/services/world/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func createTestWorld(t *testing.T, store *Store, worldID, ownerID string) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := store.CreateWorld(context.Background(), world.World{
		ID:        worldID,
		OwnerID:   ownerID,
		Name:      "test world",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create world: %v", err)
	}
}

func TestCreateWorldAndGet(t *testing.T) {
	store := openTestStore(t)
	createTestWorld(t, store, "world-1", "user-1")

	w, err := store.GetWorld(context.Background(), "world-1")
	if err != nil {
		t.Fatalf("get world: %v", err)
	}
	if w.OwnerID != "user-1" {
		t.Fatalf("expected owner user-1, got %q", w.OwnerID)
	}

	snapshot, err := store.GetWorldSnapshot(context.Background(), "world-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snapshot.ClockMillis != 0 {
		t.Fatalf("expected fresh clock at 0, got %d", snapshot.ClockMillis)
	}
}

func TestGetWorldNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetWorld(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceWorldTimeAccumulates(t *testing.T) {
	store := openTestStore(t)
	createTestWorld(t, store, "world-1", "user-1")

	snapshot, err := store.AdvanceWorldTime(context.Background(), "world-1", 50_000)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if snapshot.ClockMillis != 50_000 {
		t.Fatalf("expected 50000ms, got %d", snapshot.ClockMillis)
	}

	// Negative deltas are treated as zero; time never rewinds.
	snapshot, err = store.AdvanceWorldTime(context.Background(), "world-1", -10_000)
	if err != nil {
		t.Fatalf("advance negative: %v", err)
	}
	if snapshot.ClockMillis != 50_000 {
		t.Fatalf("expected clock to hold at 50000ms, got %d", snapshot.ClockMillis)
	}
	if snapshot.ClockSeconds() != 50.0 {
		t.Fatalf("expected 50.0s, got %v", snapshot.ClockSeconds())
	}
}

func TestAdvanceWorldTimeMissingWorld(t *testing.T) {
	store := openTestStore(t)

	_, err := store.AdvanceWorldTime(context.Background(), "missing", 10_000)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceWorldTimeLazyStateRow(t *testing.T) {
	store := openTestStore(t)
	createTestWorld(t, store, "world-1", "user-1")

	// Drop the state row to simulate a world predating clock state.
	if _, err := store.sqlDB.Exec(`DELETE FROM world_states WHERE world_id = ?`, "world-1"); err != nil {
		t.Fatalf("delete state row: %v", err)
	}

	snapshot, err := store.AdvanceWorldTime(context.Background(), "world-1", 7_000)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if snapshot.ClockMillis != 7_000 {
		t.Fatalf("expected lazily created clock at 7000ms, got %d", snapshot.ClockMillis)
	}
}

func TestAdvanceWorldTimeConcurrentAdvancesSum(t *testing.T) {
	store := openTestStore(t)
	createTestWorld(t, store, "world-1", "user-1")

	const workers = 8
	const delta = int64(10_000)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AdvanceWorldTime(context.Background(), "world-1", delta); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent advance: %v", err)
	}

	snapshot, err := store.GetWorldSnapshot(context.Background(), "world-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snapshot.ClockMillis != int64(workers)*delta {
		t.Fatalf("expected %d, got %d (lost update)", int64(workers)*delta, snapshot.ClockMillis)
	}
}
