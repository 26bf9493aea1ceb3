package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calwatch/pkg/logx"
)

// Config controls the schedule service.
type Config struct {
	Workers        int
	DefaultTimeout time.Duration // per tick run; 0 means no timeout
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "Europe/Berlin"
}

// TimerInfo describes one registered periodic timer.
type TimerInfo struct {
	ID      string
	Handler string
	Every   time.Duration
}

// HistoryItem records one executed tick.
type HistoryItem struct {
	ID       string
	Handler  string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type task struct {
	id      string
	handler string
	timeout time.Duration
	run     func(ctx context.Context) error
}

type timerDef struct {
	id      string
	handler string
	every   time.Duration
	entryID cron.EntryID
}

// Service owns the cron runner, the timer definitions and the worker pool.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser   cron.Parser
	c        *cron.Cron
	handlers map[string]func(ctx context.Context) error
	timers   map[string]*timerDef

	queue     chan task
	stopCh    chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}
