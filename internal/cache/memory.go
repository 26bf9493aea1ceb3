package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process LRU cache. Expiry is checked on read; expired
// entries are evicted so the LRU bookkeeping stays clean.
type Memory struct {
	entries *lru.Cache[string, memEntry]
}

func NewMemory(maxEntries int) (*Memory, error) {
	c, err := lru.New[string, memEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: c}, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	e, ok := m.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if !time.Now().Before(e.expiresAt) {
		m.entries.Remove(key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_ = ctx
	m.entries.Add(key, memEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

var _ Cache = (*Memory)(nil)
