package watch

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"calwatch/internal/calendar"
	"calwatch/pkg/logx"
)

// Marker values stored in the cache.
const (
	StatusProcessed = "processed"
	StatusError     = "error"
)

// Default marker retention. Error markers expire sooner so transient
// callback failures are retried earlier.
const (
	DefaultProcessedTTL = 6 * time.Hour
	DefaultErrorTTL     = 1 * time.Hour
)

// Cache is the expiring marker store behind duplicate suppression.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// DedupeKey derives the suppression key for one event instance. The key
// is global across configurations: two rules matching the same instance
// share one marker.
func DedupeKey(ev calendar.Event) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ev.ID))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(fmt.Sprintf("%d", ev.Start.UnixMilli())))
	return fmt.Sprintf("evt:%x", h.Sum64())
}

// Deduper wraps the cache with the marker protocol. The cache is best
// effort: read failures are treated as "not seen" and write failures
// are logged and dropped, so a flaky backend can cause a duplicate
// dispatch but never aborts a run.
type Deduper struct {
	cache        Cache
	log          logx.Logger
	processedTTL time.Duration
	errorTTL     time.Duration
}

func NewDeduper(c Cache, processedTTL, errorTTL time.Duration, log logx.Logger) *Deduper {
	if processedTTL <= 0 {
		processedTTL = DefaultProcessedTTL
	}
	if errorTTL <= 0 {
		errorTTL = DefaultErrorTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Deduper{cache: c, log: log, processedTTL: processedTTL, errorTTL: errorTTL}
}

// Seen reports whether an unexpired marker exists for the event.
func (d *Deduper) Seen(ctx context.Context, ev calendar.Event) bool {
	key := DedupeKey(ev)
	_, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		d.log.Warn("dedupe read failed; treating as not seen",
			logx.String("key", key),
			logx.Err(err))
		return false
	}
	return ok
}

// MarkProcessed records a successful dispatch with the long retention.
func (d *Deduper) MarkProcessed(ctx context.Context, ev calendar.Event) {
	d.mark(ctx, ev, StatusProcessed, d.processedTTL)
}

// MarkError records a failed dispatch with the short retention.
func (d *Deduper) MarkError(ctx context.Context, ev calendar.Event) {
	d.mark(ctx, ev, StatusError, d.errorTTL)
}

func (d *Deduper) mark(ctx context.Context, ev calendar.Event, status string, ttl time.Duration) {
	key := DedupeKey(ev)
	if err := d.cache.Put(ctx, key, status, ttl); err != nil {
		d.log.Warn("dedupe write failed; duplicate dispatch possible",
			logx.String("key", key),
			logx.String("status", status),
			logx.Err(err))
	}
}
