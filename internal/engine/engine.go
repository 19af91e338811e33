// Package engine owns the reminder lifecycle: the four timers, the scan
// sequence, the due-check, and the reaction to config reloads. Everything
// is instance state; nothing lives in package globals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/reminder"
	rtsup "remindd/internal/runtime/supervisor"
	"remindd/internal/scan"
	"remindd/internal/storage"
	logx "remindd/pkg/logx"
)

// fixed cadences, not user configurable
const (
	rescanEvery  = 2 * time.Minute
	cleanupEvery = time.Hour
)

// notification presentation
const (
	normalTimeout  = 10 * time.Second
	overdueTimeout = 30 * time.Second
)

// ErrNoConfig is returned by Rescan when no config has been committed yet.
// A manual trigger can land before Start has run.
var ErrNoConfig = errors.New("engine: no config loaded")

// Deps are the collaborators the engine needs. Sink and Config are
// required; Audit, Bus and OnGraphPathChange are optional.
type Deps struct {
	Log      logx.Logger
	Config   *config.Manager
	Pipeline *scan.Pipeline
	Sink     notify.Sink
	Audit    storage.Store
	Bus      eventbus.Bus
	// OnGraphPathChange re-points the graph source when graph.path changes
	// in a reload.
	OnGraphPathChange func(path string)
}

type Engine struct {
	log      logx.Logger
	cfgMgr   *config.Manager
	pipeline *scan.Pipeline
	sink     notify.Sink
	audit    storage.Store
	bus      eventbus.Bus
	onGraph  func(string)

	store  *reminder.Store
	ledger *reminder.Ledger
	timers *timers

	// now is the clock; replaced in tests.
	now func() time.Time

	cfgMu sync.RWMutex
	cfg   *config.Config

	scanSeq atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(d Deps) *Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("component", "engine"))
	return &Engine{
		log:      log,
		cfgMgr:   d.Config,
		pipeline: d.Pipeline,
		sink:     d.Sink,
		audit:    d.Audit,
		bus:      d.Bus,
		onGraph:  d.OnGraphPathChange,
		store:    reminder.NewStore(),
		ledger:   reminder.NewLedger(),
		timers:   newTimers(log),
		now:      time.Now,
	}
}

// Start loads the current config, runs one immediate scan, arms the four
// timers, and begins reacting to config reloads. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return nil
	}
	cfg := e.cfgMgr.Get()
	if cfg == nil {
		return fmt.Errorf("engine start: no config loaded")
	}
	e.setConfig(cfg)
	e.running = true

	e.sup = rtsup.New(ctx,
		rtsup.WithLogger(e.log),
		rtsup.WithCancelOnError(false),
	)
	supCtx := e.sup.Context()

	_ = e.runScan(supCtx)

	e.armPoll(supCtx, cfg)
	e.armDaily(supCtx, cfg)
	_ = e.timers.upsert(timerRescan, "@every "+rescanEvery.String(), func() {
		_ = e.runScan(supCtx)
	})
	_ = e.timers.upsert(timerCleanup, "@every "+cleanupEvery.String(), func() {
		removed := e.ledger.Prune(e.now())
		e.log.Debug("ledger pruned", logx.Int("removed", removed), logx.Int("remaining", e.ledger.Len()))
	})
	e.timers.start()

	e.sup.Go0("config.reload", e.reloadLoop)

	e.log.Info("started",
		logx.Duration("poll", cfg.Reminders.PollInterval()),
		logx.Int("rescan_hour", cfg.Reminders.RescanHour()),
		logx.Int("items", e.store.Len()),
	)
	return nil
}

// Stop cancels the timers and background loops. Idempotent; bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	sup := e.sup
	e.sup = nil
	wasRunning := e.running
	e.running = false
	e.runMu.Unlock()
	if !wasRunning {
		return nil
	}
	e.timers.stop(ctx)
	var err error
	if sup != nil {
		sup.Cancel()
		err = sup.Wait(ctx)
	}
	e.log.Info("stopped")
	return err
}

// Rescan is the manual trigger behind /rescan and SIGUSR1. It returns the
// number of reminders tracked after the scan.
func (e *Engine) Rescan(ctx context.Context) (int, error) {
	if err := e.runScan(ctx); err != nil {
		return 0, err
	}
	return e.store.Len(), nil
}

func (e *Engine) armPoll(ctx context.Context, cfg *config.Config) {
	interval := cfg.Reminders.PollInterval()
	_ = e.timers.upsert(timerPoll, "@every "+interval.String(), func() {
		e.checkDue(ctx)
	})
}

func (e *Engine) armDaily(ctx context.Context, cfg *config.Config) {
	hour := cfg.Reminders.RescanHour()
	_ = e.timers.upsert(timerDailyRescan, fmt.Sprintf("0 %d * * *", hour), func() {
		e.log.Info("daily rescan", logx.Int("hour", hour))
		_ = e.runScan(ctx)
	})
}

// runScan executes one scan and installs the result under a fresh sequence
// number. A scan that loses the sequence race leaves the store untouched.
func (e *Engine) runScan(ctx context.Context) error {
	cfg := e.config()
	if cfg == nil {
		return ErrNoConfig
	}
	seq := e.scanSeq.Add(1)
	now := e.now()
	items := e.pipeline.Scan(ctx, now, scan.Options{
		AllDayEnabled: cfg.Reminders.AllDayEnabled,
		AllDayTime:    cfg.Reminders.AllDayTimeOrDefault(),
	})
	accepted := e.store.Replace(seq, items)
	if !accepted {
		e.log.Debug("scan result discarded (stale sequence)", logx.Uint64("seq", seq))
		return nil
	}
	e.log.Debug("scan completed", logx.Uint64("seq", seq), logx.Int("items", len(items)))
	e.publish(eventbus.EventScanCompleted, map[string]any{"seq": seq, "items": len(items)})
	return nil
}

// checkDue walks the candidate set against every configured lead time and
// dispatches the pairs that are due and unseen. Evaluation order is leads
// descending inside each item, so a given tick is deterministic.
func (e *Engine) checkDue(ctx context.Context) {
	cfg := e.config()
	if cfg == nil {
		return
	}
	now := e.now()
	ev := reminder.Evaluator{Quiet: reminder.QuietHours{
		Enabled: cfg.Reminders.QuietHours.Enabled,
		Start:   cfg.Reminders.QuietHours.Start(),
		End:     cfg.Reminders.QuietHours.End(),
	}}
	leads := cfg.Reminders.LeadTimes()

	for _, it := range e.store.Snapshot() {
		if ev.IsSignificantlyPast(it, now) {
			continue
		}
		for _, lead := range leads {
			key, ok := ev.Key(it, lead)
			if !ok {
				continue
			}
			if !ev.IsDue(it, lead, now) {
				continue
			}
			if e.ledger.HasFired(key) {
				e.publish(eventbus.EventReminderDedup, map[string]any{"key": key})
				continue
			}
			if !e.ledger.TryBegin(key) {
				continue
			}
			e.dispatch(ctx, it, lead, key, now)
		}
	}
}

// dispatch sends one notification and settles the ledger reservation: a
// failed send is abandoned so the next poll tick retries it.
func (e *Engine) dispatch(ctx context.Context, it reminder.Item, lead int, key string, now time.Time) {
	n := buildNotification(it, lead, now)
	err := e.sink.Dispatch(ctx, n)
	e.appendAudit(ctx, it, lead, key, n, now, err)
	if err != nil {
		e.ledger.Abandon(key)
		e.log.Warn("dispatch failed",
			logx.String("key", key),
			logx.String("title", n.Title),
			logx.Err(err),
		)
		e.publish(eventbus.EventReminderFailed, map[string]any{"key": key})
		return
	}
	e.ledger.MarkFired(key, e.now())
	e.log.Info("reminder sent",
		logx.String("key", key),
		logx.String("title", n.Title),
		logx.Int("lead_minutes", lead),
	)
	e.publish(eventbus.EventReminderSent, map[string]any{"key": key, "lead": lead})
}

func (e *Engine) appendAudit(ctx context.Context, it reminder.Item, lead int, key string, n notify.Notification, now time.Time, dispatchErr error) {
	if e.audit == nil {
		return
	}
	rec := storage.DispatchRecord{
		At:          now,
		ItemID:      it.ID,
		Key:         key,
		Title:       n.Title,
		Severity:    string(n.Severity),
		LeadMinutes: lead,
		ScheduledAt: it.ScheduledAt,
		OK:          dispatchErr == nil,
	}
	if dispatchErr != nil {
		rec.Error = dispatchErr.Error()
	}
	actx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.audit.AppendDispatch(actx, rec); err != nil {
		e.log.Warn("audit append failed", logx.Err(err))
	}
}

// reloadLoop applies committed config changes: re-arm only the affected
// timers, rescan when evaluation inputs moved, re-point the graph source.
func (e *Engine) reloadLoop(ctx context.Context) {
	ch := e.cfgMgr.Subscribe(4)
	defer e.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			e.applyConfig(ctx, cfg)
		}
	}
}

func (e *Engine) applyConfig(ctx context.Context, cfg *config.Config) {
	old := e.config()
	cs := config.Diff(old, cfg)
	e.setConfig(cfg)
	if !cs.Any() {
		return
	}
	e.log.Info("config applied", logx.Any("changed", cs.Sections()))
	e.publish(eventbus.EventConfigApplied, map[string]any{"changed": cs.Sections()})

	if cs.Poll {
		e.armPoll(ctx, cfg)
	}
	if cs.RescanHour {
		e.armDaily(ctx, cfg)
	}
	if cs.Graph && e.onGraph != nil {
		e.onGraph(cfg.Graph.Path)
	}
	if cs.Evaluation || cs.Graph {
		_ = e.runScan(ctx)
	}
	if cs.Sink || cs.Storage {
		e.log.Warn("sink/storage settings changed; restart to apply")
	}
}

// config returns the last applied config, falling back to the manager's
// committed snapshot when Start has not run yet (a manual rescan may land
// in that window).
func (e *Engine) config() *config.Config {
	e.cfgMu.RLock()
	cfg := e.cfg
	e.cfgMu.RUnlock()
	if cfg != nil {
		return cfg
	}
	if e.cfgMgr != nil {
		return e.cfgMgr.Get()
	}
	return nil
}

func (e *Engine) setConfig(cfg *config.Config) {
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
}

func (e *Engine) publish(typ string, data map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}
