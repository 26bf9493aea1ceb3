package storage

// Package storage provides the durable state layer for the watcher.
//
// It holds two kinds of records:
//   - Key/value entries (watch configurations and trigger bindings)
//   - Dispatch markers with an expiry (duplicate suppression across restarts)
