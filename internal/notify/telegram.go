package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "remindd/internal/runtime/supervisor"
	logx "remindd/pkg/logx"
)

const telegramTextLimit = 4096

// RescanFunc is invoked by the /rescan command. It returns the number of
// reminders tracked after the scan.
type RescanFunc func(ctx context.Context) (int, error)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec bounds outgoing sends; default 3.
	RatePerSec int
	// RetryMax is how many times a failed send is retried. 0 means the
	// default of 2; a negative value disables retries.
	RetryMax int
	// PollTimeout for the long poller; default 10s.
	PollTimeout time.Duration
}

// Telegram delivers notifications to a fixed chat and serves the /rescan
// control command.
type Telegram struct {
	cfg     TelegramConfig
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	rescanMu sync.RWMutex
	rescan   RescanFunc
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Telegram{
		cfg:     cfg,
		log:     log.With(logx.String("component", "notify.telegram")),
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	t.registerHandlers()
	return t, nil
}

// SetRescanFunc installs the engine callback behind /rescan. Safe to call
// before or after Start.
func (t *Telegram) SetRescanFunc(fn RescanFunc) {
	t.rescanMu.Lock()
	t.rescan = fn
	t.rescanMu.Unlock()
}

func (t *Telegram) registerHandlers() {
	t.bot.Handle("/rescan", func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || m.Chat.ID != t.cfg.ChatID {
			return nil
		}
		t.rescanMu.RLock()
		fn := t.rescan
		t.rescanMu.RUnlock()
		if fn == nil {
			return c.Reply("Rescan is not available yet.")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := fn(ctx)
		if err != nil {
			t.log.Warn("manual rescan failed", logx.Err(err))
			return c.Reply("Rescan failed, see logs.")
		}
		return c.Reply(fmt.Sprintf("Rescan complete: tracking %d reminders.", n))
	})
}

// Start launches the long-poll loop. Idempotent.
func (t *Telegram) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return nil
	}
	t.running = true
	t.sup = rtsup.New(ctx,
		rtsup.WithLogger(t.log),
		rtsup.WithCancelOnError(false),
	)

	t.sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})
	// telebot's Start blocks until Stop; run it under a restart loop so the
	// sink self-heals if the poller exits unexpectedly. The restart loop
	// only re-runs on error, so an exit with a live context must report one.
	t.sup.GoRestart("telebot.poll", func(c context.Context) error {
		t.log.Info("polling started")
		t.bot.Start()
		if err := pollerExitErr(c); err != nil {
			t.log.Warn("polling exited unexpectedly")
			return err
		}
		t.log.Info("polling stopped")
		return nil
	})
	return nil
}

// pollerExitErr distinguishes an ordered shutdown (ctx canceled, bot.Stop
// called) from the poller giving up on its own.
func pollerExitErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("telegram poller stopped while running")
}

// Stop shuts the poller down. Idempotent; bounded by ctx.
func (t *Telegram) Stop(ctx context.Context) error {
	t.runMu.Lock()
	sup := t.sup
	t.sup = nil
	wasRunning := t.running
	t.running = false
	t.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

// Dispatch sends one notification, rate limited, with bounded retries.
// Chunks longer than the Telegram text limit are split on newlines where
// possible.
func (t *Telegram) Dispatch(ctx context.Context, n Notification) error {
	text := renderText(n)
	retries := resolveRetries(t.cfg.RetryMax)

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if lastErr = t.sendChunks(ctx, text); lastErr == nil {
			return nil
		}
		t.log.Warn("send failed",
			logx.Int("attempt", attempt+1),
			logx.String("dedup_tag", n.Options.DedupTag),
			logx.Err(lastErr),
		)
	}
	return lastErr
}

// resolveRetries maps the RetryMax setting to an attempt budget: 0 means
// the default, negative disables retries.
func resolveRetries(n int) int {
	switch {
	case n < 0:
		return 0
	case n == 0:
		return 2
	default:
		return n
	}
}

func (t *Telegram) sendChunks(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: t.cfg.ChatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		opt := &tele.SendOptions{ThreadID: t.cfg.ThreadID}
		if _, err := t.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func renderText(n Notification) string {
	var b strings.Builder
	if n.Severity == SeverityWarning {
		b.WriteString("⚠️ ")
	}
	b.WriteString(n.Title)
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	return b.String()
}

// splitText chunks s to the given rune limit, preferring newline boundaries
// near the end of each window.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// avoid extremely small chunks
					if i-start >= limit/3 {
						end = i + 1
					}
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
