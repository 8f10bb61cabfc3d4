package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/storyforge/internal/platform/timeouts"
	"github.com/louisbranch/storyforge/internal/services/world/cache"
	"github.com/louisbranch/storyforge/internal/services/world/domain/scene"
	"github.com/louisbranch/storyforge/internal/services/world/domain/stat"
	"github.com/louisbranch/storyforge/internal/services/world/storage/sqlite"
)

// RuntimeConfig controls engine startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	DBPath      string `env:"STORYFORGE_DB_PATH" envDefault:"data/world.db"`
	RedisURL    string `env:"STORYFORGE_REDIS_URL"`
	SchemaPath  string `env:"STORYFORGE_STAT_SCHEMA_PATH"`
	ScenesPath  string `env:"STORYFORGE_SCENES_PATH"`
	SchemaGroup string `env:"STORYFORGE_RELATIONSHIP_SCHEMA" envDefault:"relationship"`

	// Ticker loop: advance the listed worlds by TickDeltaSeconds every
	// TickInterval. The ticker calls the world-time store directly and
	// bypasses session logic.
	TickWorldIDs     []string      `env:"STORYFORGE_TICK_WORLD_IDS" envSeparator:","`
	TickInterval     time.Duration `env:"STORYFORGE_TICK_INTERVAL" envDefault:"1m"`
	TickDeltaSeconds float64       `env:"STORYFORGE_TICK_DELTA_SECONDS" envDefault:"60"`

	// Trim loop: keep the event journal bounded without taxing writes.
	TrimInterval time.Duration `env:"STORYFORGE_TRIM_INTERVAL" envDefault:"1h"`
	TrimKeepLast int           `env:"STORYFORGE_TRIM_KEEP_LAST" envDefault:"1000"`

	CacheFreshTTL time.Duration `env:"STORYFORGE_CACHE_FRESH_TTL" envDefault:"30s"`
	CacheLockTTL  time.Duration `env:"STORYFORGE_CACHE_LOCK_TTL" envDefault:"5s"`
}

// Run starts the engine runtime: storage, cache, config loading, and the
// periodic ticker and event-trim loops. It blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = "data/world.db"
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close sqlite store: %v", closeErr)
		}
	}()

	var relationshipCache cache.RelationshipCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.OpenRedis(ctx, cfg.RedisURL, cfg.CacheFreshTTL, cfg.CacheLockTTL)
		if err != nil {
			// Cache absence degrades to recompute, never to a failed start.
			log.Printf("redis cache unavailable, using in-process cache error=%v", err)
		} else {
			defer func() {
				if closeErr := redisCache.Close(); closeErr != nil {
					log.Printf("close redis cache: %v", closeErr)
				}
			}()
			relationshipCache = redisCache
		}
	}
	if relationshipCache == nil {
		relationshipCache = cache.NewMemory(cfg.CacheFreshTTL, cfg.CacheLockTTL)
	}

	definitions, err := loadDefinitions(cfg.SchemaPath)
	if err != nil {
		return err
	}
	graph, err := loadGraph(cfg.ScenesPath)
	if err != nil {
		return err
	}

	service, err := New(Config{
		Worlds:               store,
		Sessions:             store,
		Graph:                graph,
		Cache:                relationshipCache,
		Definitions:          definitions,
		RelationshipSchemaID: cfg.SchemaGroup,
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	log.Printf("engine runtime started db_path=%s tick_interval=%s trim_interval=%s", cfg.DBPath, cfg.TickInterval, cfg.TrimInterval)

	go runWorldTicker(ctx, service, cfg)
	go runEventTrimmer(ctx, store, cfg)

	<-ctx.Done()
	log.Printf("engine runtime stopping")
	return nil
}

func loadDefinitions(path string) (map[string]stat.Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stat schema: %w", err)
	}
	defer file.Close()
	definitions, err := stat.LoadDefinitions(file)
	if err != nil {
		return nil, fmt.Errorf("load stat schema %s: %w", path, err)
	}
	return definitions, nil
}

func loadGraph(path string) (scene.Graph, error) {
	if strings.TrimSpace(path) == "" {
		return scene.NewStaticGraph(nil, nil), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene graph: %w", err)
	}
	defer file.Close()
	graph, err := scene.LoadGraph(file)
	if err != nil {
		return nil, fmt.Errorf("load scene graph %s: %w", path, err)
	}
	return graph, nil
}

// runWorldTicker advances the configured worlds on a fixed interval.
func runWorldTicker(ctx context.Context, service *Service, cfg RuntimeConfig) {
	if len(cfg.TickWorldIDs) == 0 || cfg.TickInterval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, worldID := range cfg.TickWorldIDs {
				tickCtx, cancel := context.WithTimeout(ctx, timeouts.Pipeline)
				snapshot, err := service.AdvanceWorldTime(tickCtx, worldID, cfg.TickDeltaSeconds)
				cancel()
				if err != nil {
					log.Printf("world tick failed world_id=%s error=%v", worldID, err)
					continue
				}
				log.Printf("world tick world_id=%s clock_s=%.3f", worldID, snapshot.ClockSeconds())
			}
		}
	}
}

// eventTrimmer is the slice of the session store the trim loop needs.
type eventTrimmer interface {
	ListSessionIDs(ctx context.Context) ([]string, error)
	TrimEvents(ctx context.Context, sessionID string, keepLast int) (int64, error)
}

// runEventTrimmer bounds event journals in the background so normal writes
// never pay trim cost inline.
func runEventTrimmer(ctx context.Context, store eventTrimmer, cfg RuntimeConfig) {
	if cfg.TrimInterval <= 0 || cfg.TrimKeepLast <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.TrimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trimCtx, cancel := context.WithTimeout(ctx, timeouts.Pipeline)
			ids, err := store.ListSessionIDs(trimCtx)
			cancel()
			if err != nil {
				log.Printf("event trim list sessions failed error=%v", err)
				continue
			}
			for _, sessionID := range ids {
				trimCtx, cancel := context.WithTimeout(ctx, timeouts.Pipeline)
				trimmed, err := store.TrimEvents(trimCtx, sessionID, cfg.TrimKeepLast)
				cancel()
				if err != nil {
					log.Printf("event trim failed session_id=%s error=%v", sessionID, err)
					continue
				}
				if trimmed > 0 {
					log.Printf("event trim session_id=%s trimmed=%d keep_last=%d", sessionID, trimmed, cfg.TrimKeepLast)
				}
			}
		}
	}
}
