package schedule

import (
	"context"
	"time"

	"calwatch/pkg/logx"
)

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("schedule not running; dropping tick", logx.String("handler", t.handler))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("schedule queue full; dropping tick",
			logx.String("handler", t.handler),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()

	runCtx := ctx
	var cancel func()
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	err := t.run(runCtx)
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{
		ID:       t.id,
		Handler:  t.handler,
		Started:  start,
		Duration: dur,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("tick failed",
			logx.String("handler", t.handler),
			logx.Duration("dur", dur),
			logx.Err(err))
	} else {
		s.log.Debug("tick completed",
			logx.String("handler", t.handler),
			logx.Duration("dur", dur))
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	historySize := s.cfg.HistorySize
	// A zero cap would grow without bound on a long-running daemon.
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}
