// Package cache provides the expiring marker store behind duplicate
// suppression. Entries carry a per-entry time-to-live; once it elapses
// the entry reads as absent.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"calwatch/internal/storage"
)

// Cache records string values with a per-entry time-to-live.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config configures the cache driver.
//
// Driver values:
//   - "memory": in-process LRU, lost on restart (default)
//   - "storage": mark table of the open storage backend, survives restarts
type Config struct {
	Driver     string
	MaxEntries int // memory only; 0 means default
}

const defaultMaxEntries = 4096

// Open initializes the configured cache.
func Open(cfg Config, st storage.Store) (Cache, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		max := cfg.MaxEntries
		if max <= 0 {
			max = defaultMaxEntries
		}
		return NewMemory(max)
	case "storage":
		if st == nil {
			return nil, errors.New("cache driver \"storage\" requires an open storage backend")
		}
		return NewDurable(st), nil
	default:
		return nil, errors.New("unknown cache driver: " + driver)
	}
}
