package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"remindd/internal/config"
	"remindd/internal/eventbus"
	"remindd/internal/notify"
	"remindd/internal/scan"
	logx "remindd/pkg/logx"
)

type captureSink struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail error
}

func (s *captureSink) Dispatch(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *captureSink) last() notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type staticSource struct {
	mu     sync.Mutex
	marked []scan.Candidate
}

func (f *staticSource) QueryItemsContainingMarker(context.Context, string) ([]scan.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked, nil
}

func (f *staticSource) QueryItemsWithProperty(context.Context, string) ([]scan.Candidate, error) {
	return nil, nil
}

func (f *staticSource) set(c []scan.Candidate) {
	f.mu.Lock()
	f.marked = c
	f.mu.Unlock()
}

// testEngine builds an engine wired to a capture sink and a static source,
// with the clock frozen at the returned setter's argument.
func testEngine(t *testing.T, cfg *config.Config, src scan.Source) (*Engine, *captureSink, func(time.Time)) {
	t.Helper()
	sink := &captureSink{}
	mgr := config.NewManager("unused")
	mgr.Commit(cfg)
	e := New(Deps{
		Log:      logx.Nop(),
		Config:   mgr,
		Pipeline: scan.NewPipeline(src, logx.Nop()),
		Sink:     sink,
	})
	e.setConfig(cfg)

	var (
		mu  sync.Mutex
		cur time.Time
	)
	e.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return cur
	}
	setNow := func(at time.Time) {
		mu.Lock()
		cur = at
		mu.Unlock()
	}
	return e, sink, setNow
}

func baseConfig() *config.Config {
	return &config.Config{
		Graph:     config.GraphConfig{Path: "/g"},
		Reminders: config.RemindersConfig{Intervals: "5,0"},
	}
}

func candidateAt(id string, at time.Time) scan.Candidate {
	return scan.Candidate{
		ID:   id,
		Text: fmt.Sprintf("- %s %s %s", id, at.Format("2006-01-02"), at.Format("15:04")),
	}
}

func TestDueCheckTwoIntervals(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 14, 30, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{candidateAt("teamsync", scheduled)}}
	e, sink, setNow := testEngine(t, baseConfig(), src)
	ctx := context.Background()

	setNow(scheduled.Add(-6 * time.Minute))
	e.runScan(ctx)
	e.checkDue(ctx)
	if sink.count() != 0 {
		t.Fatalf("nothing due at 14:24, got %d dispatches", sink.count())
	}

	// 14:25: the 5-minute lead fires, the 0-minute one does not
	setNow(scheduled.Add(-5 * time.Minute))
	e.checkDue(ctx)
	if sink.count() != 1 {
		t.Fatalf("at 14:25 want 1 dispatch, got %d", sink.count())
	}
	if got := sink.last().Options.DedupTag; got != "teamsync_5" {
		t.Errorf("dedup tag = %q", got)
	}

	// repeated ticks before 14:30 stay deduplicated
	for m := -4; m < 0; m++ {
		setNow(scheduled.Add(time.Duration(m) * time.Minute))
		e.checkDue(ctx)
	}
	if sink.count() != 1 {
		t.Fatalf("dedup broken before 14:30: %d dispatches", sink.count())
	}

	// 14:30: the 0-minute lead fires once
	setNow(scheduled)
	e.checkDue(ctx)
	e.checkDue(ctx)
	if sink.count() != 2 {
		t.Fatalf("want 2 dispatches total, got %d", sink.count())
	}
	if got := sink.last().Options.DedupTag; got != "teamsync_0" {
		t.Errorf("dedup tag = %q", got)
	}
}

func TestDueCheckAllDay(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Reminders.Intervals = "0"
	cfg.Reminders.AllDayEnabled = true
	cfg.Reminders.AllDayTime = "09:00"

	src := &staticSource{marked: []scan.Candidate{
		{ID: "allday", Text: "- water plants SCHEDULED: <2025-10-14>"},
	}}
	e, sink, setNow := testEngine(t, cfg, src)
	ctx := context.Background()

	setNow(time.Date(2025, time.October, 14, 9, 1, 0, 0, time.Local))
	e.runScan(ctx)
	e.checkDue(ctx)
	if sink.count() != 1 {
		t.Fatalf("want 1 dispatch at 09:01, got %d", sink.count())
	}
	n := sink.last()
	if n.Severity != notify.SeverityWarning {
		t.Errorf("09:01 is a minute overdue; severity = %q", n.Severity)
	}
}

func TestDispatchFailureRetriesNextTick(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 14, 30, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{candidateAt("flaky", scheduled)}}
	e, sink, setNow := testEngine(t, baseConfig(), src)
	ctx := context.Background()

	setNow(scheduled.Add(-5 * time.Minute))
	e.runScan(ctx)

	sink.fail = errors.New("sink offline")
	e.checkDue(ctx)
	if sink.count() != 0 {
		t.Fatal("failed dispatch should not be recorded")
	}
	if e.ledger.Len() != 0 {
		t.Fatal("failed dispatch must not be marked fired")
	}

	// sink recovers; the next tick retries the same pair exactly once
	sink.fail = nil
	e.checkDue(ctx)
	e.checkDue(ctx)
	if sink.count() != 1 {
		t.Fatalf("want 1 dispatch after recovery, got %d", sink.count())
	}
}

func TestDueCheckQuietHours(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	start, end := 22, 7
	cfg.Reminders.QuietHours = config.QuietHoursConfig{Enabled: true, StartHour: &start, EndHour: &end}
	cfg.Reminders.Intervals = "0"

	scheduled := time.Date(2025, time.October, 14, 23, 0, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{candidateAt("night", scheduled)}}
	e, sink, setNow := testEngine(t, cfg, src)
	ctx := context.Background()

	setNow(scheduled.Add(-time.Minute))
	e.runScan(ctx)

	setNow(scheduled)
	e.checkDue(ctx)
	if sink.count() != 0 {
		t.Fatal("quiet hours should suppress the dispatch")
	}
}

func TestDueCheckSignificantlyPastVeto(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 14, 30, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{candidateAt("stale", scheduled)}}
	e, sink, setNow := testEngine(t, baseConfig(), src)
	ctx := context.Background()

	// scanned while in window, but the process slept past it
	setNow(scheduled.Add(-time.Minute))
	e.runScan(ctx)

	setNow(scheduled.Add(6 * time.Minute))
	e.checkDue(ctx)
	if sink.count() != 0 {
		t.Fatal("significantly past items must not fire")
	}
}

func TestApplyConfigEvaluationChangeTriggersScan(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 16, 0, 0, 0, time.Local)
	src := &staticSource{}
	e, _, setNow := testEngine(t, baseConfig(), src)
	ctx := context.Background()

	setNow(scheduled.Add(-2 * time.Hour))
	e.runScan(ctx)
	if e.store.Len() != 0 {
		t.Fatal("store should start empty")
	}

	// new block appears, then an interval change lands: the out-of-band
	// scan picks it up without waiting for the periodic timer
	src.set([]scan.Candidate{candidateAt("fresh", scheduled)})
	next := baseConfig()
	next.Reminders.Intervals = "15,5,0"
	e.applyConfig(ctx, next)
	if e.store.Len() != 1 {
		t.Fatalf("evaluation change should rescan, store has %d", e.store.Len())
	}
}

func TestApplyConfigGraphChangeRepointsSource(t *testing.T) {
	t.Parallel()

	src := &staticSource{}
	e, _, setNow := testEngine(t, baseConfig(), src)
	setNow(time.Date(2025, time.October, 14, 12, 0, 0, 0, time.Local))

	var gotPath string
	e.onGraph = func(p string) { gotPath = p }

	next := baseConfig()
	next.Graph.Path = "/new/graph"
	e.applyConfig(context.Background(), next)
	if gotPath != "/new/graph" {
		t.Errorf("graph change callback got %q", gotPath)
	}
}

func TestRescanReportsCount(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 18, 0, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{
		candidateAt("a", scheduled),
		candidateAt("b", scheduled.Add(time.Hour)),
	}}
	e, _, setNow := testEngine(t, baseConfig(), src)
	setNow(scheduled.Add(-time.Hour))

	n, err := e.Rescan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Rescan = %d, want 2", n)
	}
}

func TestRescanBeforeStart(t *testing.T) {
	t.Parallel()

	// A /rescan or SIGUSR1 can land before Start has committed a config.
	mgr := config.NewManager("unused")
	e := New(Deps{
		Log:      logx.Nop(),
		Config:   mgr,
		Pipeline: scan.NewPipeline(&staticSource{}, logx.Nop()),
		Sink:     &captureSink{},
	})

	if _, err := e.Rescan(context.Background()); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("Rescan without config: err = %v, want ErrNoConfig", err)
	}

	// once the manager holds a committed config, the trigger works even
	// though Start has not run
	mgr.Commit(baseConfig())
	if _, err := e.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan with committed config: %v", err)
	}
}

func TestEngineEventsObservable(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, time.October, 14, 14, 30, 0, 0, time.Local)
	src := &staticSource{marked: []scan.Candidate{candidateAt("meeting", scheduled)}}
	bus := eventbus.New()
	mgr := config.NewManager("unused")
	mgr.Commit(baseConfig())
	e := New(Deps{
		Log:      logx.Nop(),
		Config:   mgr,
		Pipeline: scan.NewPipeline(src, logx.Nop()),
		Sink:     &captureSink{},
		Bus:      bus,
	})
	e.setConfig(baseConfig())
	now := scheduled.Add(-5 * time.Minute)
	e.now = func() time.Time { return now }

	ch, unsub := bus.Subscribe(16)
	defer unsub()

	ctx := context.Background()
	_ = e.runScan(ctx)
	e.checkDue(ctx)
	e.checkDue(ctx) // second tick dedups

	got := map[string]int{}
	for drained := false; !drained; {
		select {
		case ev := <-ch:
			got[ev.Type]++
		default:
			drained = true
		}
	}
	if got[eventbus.EventScanCompleted] != 1 {
		t.Errorf("scan.completed events = %d, want 1", got[eventbus.EventScanCompleted])
	}
	if got[eventbus.EventReminderSent] != 1 {
		t.Errorf("reminder.sent events = %d, want 1", got[eventbus.EventReminderSent])
	}
	if got[eventbus.EventReminderDedup] == 0 {
		t.Error("expected at least one reminder.deduped event")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	src := &staticSource{}
	cfg := baseConfig()
	sink := &captureSink{}
	mgr := config.NewManager("unused")
	mgr.Commit(cfg)
	e := New(Deps{
		Log:      logx.Nop(),
		Config:   mgr,
		Pipeline: scan.NewPipeline(src, logx.Nop()),
		Sink:     sink,
	})

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
}
