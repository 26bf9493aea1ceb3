package callbacks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"calwatch/internal/calendar"
	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook posts each matched event as a JSON document. Non-2xx
// responses are errors, so the engine records the short-lived error
// marker and the post is retried after it expires.
type Webhook struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

type webhookPayload struct {
	Callback string `json:"callback"`
	Event    struct {
		ID     string    `json:"id"`
		Title  string    `json:"title"`
		Start  time.Time `json:"start"`
		AllDay bool      `json:"all_day"`
	} `json:"event"`
	FiredAt time.Time `json:"fired_at"`
}

func NewWebhook(sp Spec, log logx.Logger) (*Webhook, error) {
	raw := strings.TrimSpace(sp.URL)
	if raw == "" {
		return nil, errors.New("webhook url required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid webhook url %q", raw)
	}
	timeout := sp.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	var limiter *rate.Limiter
	if sp.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(sp.RatePerSec), sp.RatePerSec)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{
		name:    sp.Name,
		url:     raw,
		headers: sp.Headers,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}, nil
}

func (w *Webhook) Invoke(ctx context.Context, ev calendar.Event) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var p webhookPayload
	p.Callback = w.name
	p.Event.ID = ev.ID
	p.Event.Title = ev.Title
	p.Event.Start = ev.Start
	p.Event.AllDay = ev.AllDay
	p.FiredAt = time.Now()

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain a little so the connection can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	w.log.Debug("webhook delivered",
		logx.String("callback", w.name),
		logx.String("event", ev.ID),
		logx.Int("status", resp.StatusCode))
	return nil
}

var _ watch.Callback = (*Webhook)(nil)
