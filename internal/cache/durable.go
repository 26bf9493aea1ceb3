package cache

import (
	"context"
	"time"

	"calwatch/internal/storage"
)

// Durable stores entries in the mark table of the storage backend, so
// suppression markers survive process restarts.
type Durable struct {
	store storage.Store
}

func NewDurable(st storage.Store) *Durable {
	return &Durable{store: st}
}

func (d *Durable) Get(ctx context.Context, key string) (string, bool, error) {
	v, until, ok, err := d.store.GetMark(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if !time.Now().Before(until) {
		return "", false, nil
	}
	return v, true, nil
}

func (d *Durable) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return d.store.PutMark(ctx, key, value, time.Now().Add(ttl))
}

var _ Cache = (*Durable)(nil)
