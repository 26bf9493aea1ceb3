// Package callbacks provides the built-in callback implementations a
// watch rule can reference by name: log lines, webhook posts and
// telegram messages. Specs come from app config; Register builds each
// callback and binds it into the watch registry.
package callbacks

import (
	"fmt"
	"strings"
	"time"

	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

// Spec describes one configured callback.
type Spec struct {
	Name string
	Type string // "log" | "webhook" | "telegram"

	// webhook
	URL     string
	Timeout time.Duration
	Headers map[string]string

	// telegram
	Token  string
	ChatID int64

	// webhook + telegram
	RatePerSec int
}

// Register builds every spec and binds it into the registry under its
// name. The first invalid spec aborts with an error; nothing built so
// far is unbound, matching registry upsert semantics on reload.
func Register(reg *watch.Registry, specs []Spec, log logx.Logger) error {
	for _, sp := range specs {
		cb, err := build(sp, log)
		if err != nil {
			return fmt.Errorf("callback %q: %w", sp.Name, err)
		}
		if err := reg.Register(sp.Name, cb); err != nil {
			return err
		}
	}
	return nil
}

func build(sp Spec, log logx.Logger) (watch.Callback, error) {
	if strings.TrimSpace(sp.Name) == "" {
		return nil, fmt.Errorf("name required")
	}
	switch strings.ToLower(strings.TrimSpace(sp.Type)) {
	case "log":
		return NewLog(sp.Name, log), nil
	case "webhook":
		return NewWebhook(sp, log)
	case "telegram":
		return NewTelegram(sp, log)
	default:
		return nil, fmt.Errorf("unknown callback type %q", sp.Type)
	}
}
