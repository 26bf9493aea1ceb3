package callbacks

import (
	"context"

	"calwatch/internal/calendar"
	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

// Log writes each matched event to the application log. Useful as a
// smoke-test target and as the default callback in minimal setups.
type Log struct {
	name string
	log  logx.Logger
}

func NewLog(name string, log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{name: name, log: log}
}

func (l *Log) Invoke(ctx context.Context, ev calendar.Event) error {
	_ = ctx
	l.log.Info("upcoming event",
		logx.String("callback", l.name),
		logx.String("event", ev.ID),
		logx.String("title", ev.Title),
		logx.Time("start", ev.Start),
		logx.Bool("all_day", ev.AllDay))
	return nil
}

var _ watch.Callback = (*Log)(nil)
