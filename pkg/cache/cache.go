// Package cache provides the byte-level caches used by the diagram pipeline.
//
// Each pipeline stage (repository context, explanation, component mapping,
// Mermaid) stores its output under a key produced by a [Keyer]. Backends:
//
//   - [FileCache]: hash-sharded files under ~/.cache/easygithub (CLI default)
//   - [MemoryCache]: bounded LRU with per-entry expiry (server default)
//   - [RedisCache]: shared cache for multi-instance servers
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the interface every backend implements.
type Cache interface {
	// Get returns the cached bytes and whether the key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// TTLs per cached artifact.
const (
	TTLContext = time.Hour
	TTLStage   = 24 * time.Hour
	TTLHTTP    = 30 * time.Minute
)

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string `toml:"backend" yaml:"backend" json:"backend" validate:"omitempty,oneof=file memory redis none"`
	Dir      string `toml:"dir" yaml:"dir" json:"dir,omitempty"`
	RedisURL string `toml:"redis_url" yaml:"redis_url" json:"redis_url,omitempty" validate:"required_if=Backend redis"`
	Size     int    `toml:"size" yaml:"size" json:"size,omitempty" validate:"gte=0"`
}

// Open constructs the backend named by cfg.Backend.
// An empty backend selects the file cache.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file cache: directory is required")
		}
		return wrap(NewFileCache(cfg.Dir))
	case BackendMemory:
		return wrap(NewMemoryCache(cfg.Size))
	case BackendRedis:
		return wrap(NewRedisCache(ctx, cfg.RedisURL))
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// wrap converts a concrete constructor result into the interface without
// producing a non-nil interface around a nil pointer.
func wrap[C Cache](c C, err error) (Cache, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
