// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between callers and makes the
// durations discoverable.
package timeouts

import "time"

// Pipeline caps a single Validate/Apply/Derive/Cache mutation pipeline.
// A timeout firing after Apply commits means "uncertain outcome, re-read
// state", never an implicit rollback.
const Pipeline = 5 * time.Second

// CacheOp caps a single cache read or write against the shared cache.
const CacheOp = 2 * time.Second

// Shutdown limits how long runtime loops wait for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
