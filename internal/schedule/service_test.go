package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"calwatch/pkg/logx"
)

func nopHandler(ctx context.Context) error { return nil }

func TestRegisterHandler(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if err := s.RegisterHandler("", nopHandler); err == nil {
		t.Fatal("RegisterHandler(empty name) succeeded")
	}
	if err := s.RegisterHandler("check", nil); err == nil {
		t.Fatal("RegisterHandler(nil fn) succeeded")
	}
	if err := s.RegisterHandler("check", nopHandler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	// Re-registering replaces the function.
	if err := s.RegisterHandler("check", nopHandler); err != nil {
		t.Fatalf("RegisterHandler(again): %v", err)
	}
}

func TestEnsureTimer(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.RegisterHandler("check", nopHandler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	id, err := s.EnsureTimer("check", 6*time.Hour)
	if err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}
	if !strings.HasPrefix(id, "timer:") {
		t.Fatalf("timer id = %q, want timer: prefix", id)
	}

	// Idempotent per handler; the original interval wins.
	id2, err := s.EnsureTimer("check", 12*time.Hour)
	if err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}
	if id2 != id {
		t.Fatalf("second EnsureTimer id = %q, want %q", id2, id)
	}
	timers := s.ListTimers()
	if len(timers) != 1 {
		t.Fatalf("ListTimers() len = %d, want 1", len(timers))
	}
	if timers[0].Every != 6*time.Hour {
		t.Fatalf("interval = %v, want original 6h", timers[0].Every)
	}

	if _, err := s.EnsureTimer("", time.Hour); err == nil {
		t.Fatal("EnsureTimer(empty handler) succeeded")
	}
	if _, err := s.EnsureTimer("check", 0); err == nil {
		t.Fatal("EnsureTimer(zero interval) succeeded")
	}
	if _, err := s.EnsureTimer("unregistered", time.Hour); err == nil {
		t.Fatal("EnsureTimer(unknown handler) succeeded")
	}
}

func TestListTimersSorted(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	for _, name := range []string{"a", "b", "c"} {
		if err := s.RegisterHandler(name, nopHandler); err != nil {
			t.Fatalf("RegisterHandler: %v", err)
		}
		if _, err := s.EnsureTimer(name, time.Hour); err != nil {
			t.Fatalf("EnsureTimer: %v", err)
		}
	}
	timers := s.ListTimers()
	if len(timers) != 3 {
		t.Fatalf("ListTimers() len = %d, want 3", len(timers))
	}
	if !sort.SliceIsSorted(timers, func(i, j int) bool { return timers[i].ID < timers[j].ID }) {
		t.Fatalf("ListTimers() not sorted: %v", timers)
	}
}

func TestDeleteTimer(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.RegisterHandler("check", nopHandler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	id, err := s.EnsureTimer("check", time.Hour)
	if err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}

	if err := s.DeleteTimer(id); err != nil {
		t.Fatalf("DeleteTimer: %v", err)
	}
	if got := s.ListTimers(); len(got) != 0 {
		t.Fatalf("ListTimers() after delete = %v", got)
	}
	if err := s.DeleteTimer("timer:unknown"); err != nil {
		t.Fatalf("DeleteTimer(unknown) = %v, want nil", err)
	}

	// The handler is free for a fresh timer afterwards.
	id2, err := s.EnsureTimer("check", time.Hour)
	if err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}
	if id2 == id {
		t.Fatalf("recreated timer reused id %q", id)
	}
}

func TestServiceRunsTicks(t *testing.T) {
	// Real time; no t.Parallel to keep the timing honest.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := New(Config{Workers: 2, DefaultTimeout: time.Second, HistorySize: 16}, logx.Nop())

	fired := make(chan struct{}, 8)
	if err := s.RegisterHandler("early", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	failed := make(chan struct{}, 8)
	if err := s.RegisterHandler("late", func(ctx context.Context) error {
		select {
		case failed <- struct{}{}:
		default:
		}
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	// Registered before Start: bound when the cron comes up.
	if _, err := s.EnsureTimer("early", 50*time.Millisecond); err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}
	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
	}()
	// Starting twice is a no-op.
	s.Start(ctx)

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("timer registered before Start never fired")
	}

	// Registered while running: bound immediately.
	if _, err := s.EnsureTimer("late", 50*time.Millisecond); err != nil {
		t.Fatalf("EnsureTimer: %v", err)
	}
	select {
	case <-failed:
	case <-ctx.Done():
		t.Fatal("timer registered while running never fired")
	}

	// Failed ticks land in history with their error.
	deadline := time.After(5 * time.Second)
	for {
		var sawErr bool
		for _, item := range s.History() {
			if item.Handler == "late" && item.Error != "" {
				sawErr = true
			}
		}
		if sawErr {
			break
		}
		select {
		case <-deadline:
			t.Fatal("failed tick never recorded in history")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop())
	if err := s.RegisterHandler("check", nopHandler); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	// Stopping again and restarting are both safe.
	s.Stop(stopCtx)
	s.Start(ctx)
	s.Stop(stopCtx)
}
