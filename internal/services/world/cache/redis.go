package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/storyforge/internal/services/world/domain/session"
)

const (
	freshKeyPrefix = "relationships:"
	lastKeyPrefix  = "relationships:last:"
	lockKeyPrefix  = "relationships:lock:"

	// lastTTL keeps a last-known value around long enough to serve stale
	// reads during lock contention without growing the keyspace forever.
	lastTTL = 10 * time.Minute

	lockPollInterval = 100 * time.Millisecond
	lockWaitBudget   = time.Second
)

// Redis is the shared RelationshipCache backed by a redis server.
//
// Keys are partitioned per session. The advisory lock is a SetNX key with a
// short TTL; it bounds duplicate recomputation, not correctness.
type Redis struct {
	client   *redis.Client
	freshTTL time.Duration
	lockTTL  time.Duration
}

// OpenRedis connects to the redis server at url and verifies the connection.
func OpenRedis(ctx context.Context, url string, freshTTL, lockTTL time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if freshTTL <= 0 {
		freshTTL = DefaultFreshTTL
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Redis{client: client, freshTTL: freshTTL, lockTTL: lockTTL}, nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) get(ctx context.Context, key string) (map[string]session.Relationship, bool, error) {
	payload, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	var relationships map[string]session.Relationship
	if err := json.Unmarshal([]byte(payload), &relationships); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return relationships, true, nil
}

func (r *Redis) store(ctx context.Context, sessionID string, relationships map[string]session.Relationship) error {
	payload, err := json.Marshal(relationships)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, freshKeyPrefix+sessionID, payload, r.freshTTL)
	pipe.Set(ctx, lastKeyPrefix+sessionID, payload, lastTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// GetOrCompute implements RelationshipCache.
func (r *Redis) GetOrCompute(ctx context.Context, sessionID string, compute ComputeFunc, wait bool) (Result, error) {
	if value, hit, err := r.get(ctx, freshKeyPrefix+sessionID); err != nil {
		return Result{}, err
	} else if hit {
		return Result{Relationships: value}, nil
	}

	lockKey := lockKeyPrefix + sessionID
	acquired, err := r.client.SetNX(ctx, lockKey, "1", r.lockTTL).Result()
	if err != nil {
		return Result{}, fmt.Errorf("cache lock %s: %w", lockKey, err)
	}

	if acquired {
		relationships, err := compute(ctx)
		if err != nil {
			r.client.Del(ctx, lockKey)
			return Result{}, err
		}
		if err := r.store(ctx, sessionID, relationships); err != nil {
			r.client.Del(ctx, lockKey)
			return Result{}, err
		}
		r.client.Del(ctx, lockKey)
		return Result{Relationships: relationships}, nil
	}

	if wait {
		deadline := time.Now().Add(lockWaitBudget)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(lockPollInterval):
			}
			if value, hit, err := r.get(ctx, freshKeyPrefix+sessionID); err != nil {
				return Result{}, err
			} else if hit {
				return Result{Relationships: value}, nil
			}
		}
	}

	if value, hit, err := r.get(ctx, lastKeyPrefix+sessionID); err != nil {
		return Result{}, err
	} else if hit {
		return Result{Relationships: value, Stale: true}, nil
	}

	// No fresh value, no last-known value: compute despite the lock. The
	// lock only bounds duplicate work, it does not gate correctness.
	relationships, err := compute(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Relationships: relationships}, nil
}

// Refresh implements RelationshipCache.
func (r *Redis) Refresh(ctx context.Context, sessionID string, relationships map[string]session.Relationship) error {
	return r.store(ctx, sessionID, relationships)
}
