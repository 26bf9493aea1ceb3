package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memStore keeps everything in process memory. It backs the daemon
// when no durable driver is configured and doubles as the test store.
type memStore struct {
	mu    sync.RWMutex
	kv    map[string]string
	marks map[string]markState

	markOps int
}

// NewMemory returns an empty in-memory store. State is lost on restart;
// declaratively managed rules are re-seeded from config on boot, so the
// daemon stays usable without a durable backend.
func NewMemory() Store {
	return &memStore{
		kv:    make(map[string]string),
		marks: make(map[string]markState),
	}
}

func (m *memStore) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.kv[key] = value
	m.mu.Unlock()
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	v, ok := m.kv[key]
	m.mu.RUnlock()
	return v, ok, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.kv, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	m.mu.RLock()
	out := make(map[string]string)
	for k, v := range m.kv {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *memStore) PutMark(ctx context.Context, key, value string, until time.Time) error {
	m.mu.Lock()
	m.marks[key] = markState{Value: value, Until: until.UnixMilli()}
	m.markOps++
	if m.markOps >= 1000 {
		m.markOps = 0
		now := time.Now().UnixMilli()
		for k, st := range m.marks {
			if st.Until <= now {
				delete(m.marks, k)
			}
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetMark(ctx context.Context, key string) (string, time.Time, bool, error) {
	m.mu.RLock()
	st, ok := m.marks[key]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, false, nil
	}
	return st.Value, time.UnixMilli(st.Until), true, nil
}

func (m *memStore) Close() error { return nil }
