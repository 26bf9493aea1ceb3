package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "calwatch/pkg/logx"
)

// Store is the minimal persistence API used by the watch service.
//
// Keys are opaque; callers namespace them with prefixes. Mark records
// carry a status value and an expiry after which they read as absent.
type Store interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)

	PutMark(ctx context.Context, key, value string, until time.Time) error
	GetMark(ctx context.Context, key string) (value string, until time.Time, ok bool, err error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
