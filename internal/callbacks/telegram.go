package callbacks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"calwatch/internal/calendar"
	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

// Telegram sends one message per matched event to a fixed chat. The bot
// is outbound-only: it is never started, so no updates are polled.
type Telegram struct {
	name    string
	chatID  int64
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(sp Spec, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(sp.Token) == "" {
		return nil, errors.New("telegram token required")
	}
	if sp.ChatID == 0 {
		return nil, errors.New("telegram chat id required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  sp.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	var limiter *rate.Limiter
	if sp.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(sp.RatePerSec), sp.RatePerSec)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{name: sp.Name, chatID: sp.ChatID, bot: b, limiter: limiter, log: log}, nil
}

func (t *Telegram) Invoke(ctx context.Context, ev calendar.Event) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var when string
	if ev.AllDay {
		when = ev.Start.Format("Mon, 02 Jan 2006")
	} else {
		when = ev.Start.Format("Mon, 02 Jan 2006 15:04")
	}
	text := fmt.Sprintf("📅 Upcoming: %s\n%s", ev.Title, when)

	chat := &tele.Chat{ID: t.chatID}
	if _, err := t.bot.Send(chat, text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.Debug("telegram message sent",
		logx.String("callback", t.name),
		logx.String("event", ev.ID),
		logx.Int64("chat", t.chatID))
	return nil
}

var _ watch.Callback = (*Telegram)(nil)
