package engine

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	logx "remindd/pkg/logx"
)

// timer names, used as upsert keys
const (
	timerPoll        = "reminders.poll"
	timerRescan      = "reminders.rescan"
	timerDailyRescan = "reminders.rescan_daily"
	timerCleanup     = "ledger.cleanup"
)

// timers wraps cron with named, upserting entries: re-registering a name
// replaces its schedule, so hot-reloads never stack duplicate jobs. Cron
// owns every next-fire computation, including the daily rescan's.
type timers struct {
	mu  sync.Mutex
	c   *cron.Cron
	ids map[string]cron.EntryID
	log logx.Logger
}

func newTimers(log logx.Logger) *timers {
	return &timers{
		c:   cron.New(),
		ids: map[string]cron.EntryID{},
		log: log,
	}
}

func (t *timers) start() {
	t.c.Start()
}

// stop halts triggering and waits for running jobs, bounded by ctx.
func (t *timers) stop(ctx context.Context) {
	select {
	case <-t.c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
}

// upsert registers job under name, replacing any previous schedule for it.
func (t *timers) upsert(name, spec string, job func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		t.c.Remove(id)
		delete(t.ids, name)
	}
	id, err := t.c.AddFunc(spec, job)
	if err != nil {
		t.log.Error("timer register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return err
	}
	t.ids[name] = id
	t.log.Debug("timer armed", logx.String("name", name), logx.String("spec", spec))
	return nil
}
