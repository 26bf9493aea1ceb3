// Package ics implements calendar.Source over ICS feed subscriptions.
//
// Each feed is one calendar id. Feed bodies are fetched over HTTP with
// conditional revalidation (ETag / Last-Modified) and kept in memory; a
// stale snapshot keeps serving queries when the upstream is unreachable.
package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"calwatch/internal/calendar"
	"calwatch/pkg/logx"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultRefresh      = 15 * time.Minute
	defaultMaxInstances = 5000
)

// FeedConfig describes a single ICS subscription.
type FeedConfig struct {
	ID      string
	Name    string
	URL     string
	Refresh time.Duration // snapshot max age; default 15m
}

// Config holds source-wide knobs.
type Config struct {
	FetchTimeout time.Duration
	// MaxInstances caps recurrence expansion per feed and query.
	MaxInstances int
}

type feed struct {
	cfg FeedConfig

	mu           sync.Mutex
	etag         string
	lastModified string
	events       []parsedEvent
	fetchedAt    time.Time
	haveSnapshot bool
}

// Source serves calendar queries from subscribed ICS feeds.
type Source struct {
	log    logx.Logger
	cfg    Config
	loc    *time.Location
	client *http.Client

	mu    sync.RWMutex
	feeds map[string]*feed
}

func New(cfg Config, feeds []FeedConfig, loc *time.Location, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = defaultMaxInstances
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Source{
		log:    log,
		cfg:    cfg,
		loc:    loc,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		feeds:  map[string]*feed{},
	}
	for _, fc := range feeds {
		if fc.Refresh <= 0 {
			fc.Refresh = defaultRefresh
		}
		s.feeds[fc.ID] = &feed{cfg: fc}
	}
	return s
}

func (s *Source) Calendar(ctx context.Context, id string) (calendar.Calendar, error) {
	s.mu.RLock()
	f, ok := s.feeds[id]
	s.mu.RUnlock()
	if !ok {
		return calendar.Calendar{}, calendar.ErrCalendarNotFound
	}
	name := f.cfg.Name
	if name == "" {
		name = f.cfg.ID
	}
	return calendar.Calendar{ID: f.cfg.ID, Name: name}, nil
}

func (s *Source) Events(ctx context.Context, id string, start, end time.Time, textFilter string) ([]calendar.Event, error) {
	s.mu.RLock()
	f, ok := s.feeds[id]
	s.mu.RUnlock()
	if !ok {
		return nil, calendar.ErrCalendarNotFound
	}

	events, err := s.snapshot(ctx, f)
	if err != nil {
		return nil, err
	}

	out := expand(events, start, end, s.loc, s.cfg.MaxInstances)

	filtered := out[:0]
	for _, ev := range out {
		if calendar.ContainsFold(ev.Title, textFilter) {
			filtered = append(filtered, ev)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Start.Before(filtered[j].Start) })
	return filtered, nil
}

// snapshot returns the feed's parsed events, refreshing them first when the
// snapshot is older than the feed's refresh interval. A refresh failure is
// fatal only when no previous snapshot exists.
func (s *Source) snapshot(ctx context.Context, f *feed) ([]parsedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.haveSnapshot && time.Since(f.fetchedAt) < f.cfg.Refresh {
		return f.events, nil
	}

	if err := s.refreshLocked(ctx, f); err != nil {
		if f.haveSnapshot {
			s.log.Warn("ics refresh failed, serving stale snapshot",
				logx.String("feed", f.cfg.ID), logx.String("url", redactURL(f.cfg.URL)), logx.Err(err))
			return f.events, nil
		}
		return nil, err
	}
	return f.events, nil
}

func (s *Source) refreshLocked(ctx context.Context, f *feed) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		events, err := parseFeed(f.cfg.ID, body, s.loc, s.log)
		if err != nil {
			return err
		}
		f.events = events
		f.etag = resp.Header.Get("ETag")
		f.lastModified = resp.Header.Get("Last-Modified")
		f.fetchedAt = time.Now()
		f.haveSnapshot = true
		s.log.Debug("ics feed refreshed",
			logx.String("feed", f.cfg.ID), logx.Int("events", len(events)))
		return nil

	case http.StatusNotModified:
		if !f.haveSnapshot {
			return errors.New("304 Not Modified without a cached snapshot")
		}
		f.fetchedAt = time.Now()
		return nil

	default:
		return errors.New("unexpected status " + resp.Status)
	}
}

// redactURL trims an ICS URL down to its host for logs; feed URLs routinely
// embed access tokens in the path or query.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/..."
}

var _ calendar.Source = (*Source)(nil)
