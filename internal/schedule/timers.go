package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"calwatch/pkg/logx"
)

// RegisterHandler binds a handler name to a run function. Re-registering
// a name replaces the function; timers referencing the name keep running.
func (s *Service) RegisterHandler(name string, fn func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("handler name required")
	}
	if fn == nil {
		return errors.New("handler func required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = fn
	return nil
}

// EnsureTimer returns the id of the periodic timer bound to handler,
// creating one with the given interval if none exists. An existing
// timer keeps its original interval.
func (s *Service) EnsureTimer(handler string, every time.Duration) (string, error) {
	handler = strings.TrimSpace(handler)
	if handler == "" {
		return "", errors.New("handler name required")
	}
	if every <= 0 {
		return "", fmt.Errorf("invalid timer interval %s", every)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[handler]; !ok {
		return "", fmt.Errorf("unknown handler %q", handler)
	}
	for _, d := range s.timers {
		if d.handler == handler {
			return d.id, nil
		}
	}

	d := &timerDef{
		id:      "timer:" + uuid.NewString(),
		handler: handler,
		every:   every,
	}
	s.timers[d.id] = d
	if s.c != nil {
		s.bindTimerLocked(d)
	}
	s.log.Debug("timer created",
		logx.String("id", d.id),
		logx.String("handler", handler),
		logx.Duration("every", every))
	return d.id, nil
}

// ListTimers returns a snapshot of all registered timers, ordered by id.
func (s *Service) ListTimers() []TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimerInfo, 0, len(s.timers))
	for _, d := range s.timers {
		out = append(out, TimerInfo{ID: d.id, Handler: d.handler, Every: d.every})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteTimer removes a timer by id. Deleting an unknown id is a no-op.
func (s *Service) DeleteTimer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.timers[id]
	if !ok {
		return nil
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.timers, id)
	s.log.Debug("timer deleted", logx.String("id", id), logx.String("handler", d.handler))
	return nil
}

// History returns a snapshot of recent tick executions, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

// bindTimerLocked registers the cron entry for a timer definition.
// Call with s.mu held and s.c non-nil.
func (s *Service) bindTimerLocked(d *timerDef) {
	spec := fmt.Sprintf("@every %s", d.every.String())
	eid, err := s.c.AddFunc(spec, func() {
		s.mu.Lock()
		fn := s.handlers[d.handler]
		timeout := s.cfg.DefaultTimeout
		s.mu.Unlock()
		if fn == nil {
			s.log.Warn("tick for unregistered handler", logx.String("handler", d.handler))
			return
		}
		s.enqueue(task{id: d.id, handler: d.handler, timeout: timeout, run: fn})
	})
	if err != nil {
		s.log.Error("timer bind failed",
			logx.String("id", d.id),
			logx.String("spec", spec),
			logx.Err(err))
		return
	}
	d.entryID = eid
}
