package watch

import (
	"time"

	"calwatch/internal/schedule"
	"calwatch/pkg/logx"
)

// CheckHandler is the scheduler handler name all watch timers bind to.
const CheckHandler = "watch.check"

// Scheduler is the periodic timer surface the engine drives. It is
// implemented by the schedule service.
type Scheduler interface {
	EnsureTimer(handler string, every time.Duration) (string, error)
	ListTimers() []schedule.TimerInfo
	DeleteTimer(id string) error
}

// triggerRefs reference-counts the one shared check timer across
// configurations. References are the persisted trigger bindings, not an
// in-memory counter, so counts survive restarts.
type triggerRefs struct {
	sched   Scheduler
	handler string
	log     logx.Logger
}

// acquire returns the shared timer id, creating the timer if no timer
// for the check handler exists. Only the creating call fixes the
// cadence; later acquirers join the existing timer unchanged. created
// tells the caller whether compensation on a failed persist may delete
// the timer.
func (t *triggerRefs) acquire(everyHours int) (id string, created bool, err error) {
	for _, ti := range t.sched.ListTimers() {
		if ti.Handler == t.handler {
			return ti.ID, false, nil
		}
	}
	id, err = t.sched.EnsureTimer(t.handler, time.Duration(everyHours)*time.Hour)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// release destroys timerID only when no remaining configuration
// references it. A timer bound to a different handler is never touched,
// even under a matching id.
func (t *triggerRefs) release(timerID string, remaining []Configuration) error {
	if timerID == "" {
		return nil
	}
	for _, c := range remaining {
		if c.AssociatedTriggerID == timerID {
			t.log.Debug("timer still referenced; keeping",
				logx.String("timer", timerID),
				logx.String("by", c.UniqueID))
			return nil
		}
	}
	for _, ti := range t.sched.ListTimers() {
		if ti.ID != timerID {
			continue
		}
		if ti.Handler != t.handler {
			t.log.Warn("timer bound to unrelated handler; leaving untouched",
				logx.String("timer", timerID),
				logx.String("handler", ti.Handler))
			return nil
		}
		return t.sched.DeleteTimer(timerID)
	}
	// Already gone.
	return nil
}
