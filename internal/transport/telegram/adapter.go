// Package telegram implements the Messenger interface on the Telegram Bot
// API via telebot long polling.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/vexx32/thread-tracker/internal/transport"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

// Config configures the adapter.
type Config struct {
	Token        string
	PollTimeout  time.Duration // 0 means 10s
	RatePerSec   int           // outgoing call cap, 0 means 20
	HistoryDepth int           // per-chat reply history, 0 means 50
}

// Adapter is a transport.Messenger backed by one bot account.
type Adapter struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	history *history
	log     logx.Logger

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// TextHandler receives every incoming text message after it has been
// recorded in the reply history. The command router hangs off this hook.
type TextHandler func(ctx context.Context, m transport.Message)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 20
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		history: newHistory(cfg.HistoryDepth),
		log:     log.With(logx.String("component", "telegram")),
	}, nil
}

// Start begins long polling. Every text message feeds the reply history and
// then the handler, which may be nil.
func (a *Adapter) Start(ctx context.Context, handler TextHandler) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		tm := c.Message()
		if tm == nil || tm.Sender == nil || tm.Chat == nil {
			return nil
		}
		m := transport.Message{
			ID:         int64(tm.ID),
			ChannelID:  tm.Chat.ID,
			AuthorID:   tm.Sender.ID,
			AuthorName: displayName(tm.Sender),
			SentAt:     tm.Time(),
			Text:       tm.Text,
		}
		a.history.add(m)
		if handler != nil {
			handler(rctx, m)
		}
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop
	}()
	return nil
}

// Stop halts polling. Shutdown is never held hostage by a pending long poll;
// after a short grace window it proceeds regardless.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("stop grace elapsed, continuing shutdown")
		return nil
	}
}

// ---- transport.Messenger ----

func (a *Adapter) RecentMessages(_ context.Context, channelID int64, limit int) ([]transport.Message, error) {
	return a.history.recent(channelID, limit), nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID int64, text string) (int64, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: channelID}, text, markdownOpts())
	if err != nil {
		return 0, mapError(err)
	}
	return int64(msg.ID), nil
}

func (a *Adapter) EditMessage(ctx context.Context, ref transport.MessageRef, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: int(ref.MessageID), Chat: &tele.Chat{ID: ref.ChannelID}}
	if _, err := a.bot.Edit(m, text, markdownOpts()); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: int(ref.MessageID), Chat: &tele.Chat{ID: ref.ChannelID}}
	if err := a.bot.Delete(m); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *Adapter) SendDirect(ctx context.Context, userID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.bot.Send(&tele.User{ID: userID}, text, markdownOpts()); err != nil {
		return mapError(err)
	}
	return nil
}

func markdownOpts() *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeMarkdown, DisableWebPagePreview: true}
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// mapError translates Bot API failures to the transport sentinels the
// engines branch on. Unknown errors pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return transport.ErrChannelUnavailable
	}
	if errors.Is(err, tele.ErrBlockedByUser) {
		return transport.ErrBlocked
	}

	// The API reports most conditions only through the description text.
	desc := strings.ToLower(err.Error())
	switch {
	case strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message to delete not found"):
		return transport.ErrMessageNotFound
	case strings.Contains(desc, "message is not modified"):
		// The content already matches; nothing to do.
		return nil
	case strings.Contains(desc, "too many requests"),
		strings.Contains(desc, "retry after"):
		return transport.ErrRateLimited
	case strings.Contains(desc, "bot was kicked"),
		strings.Contains(desc, "not enough rights"),
		strings.Contains(desc, "chat not found"):
		return transport.ErrChannelUnavailable
	case strings.Contains(desc, "blocked by the user"),
		strings.Contains(desc, "can't initiate conversation"):
		return transport.ErrBlocked
	}
	return err
}
