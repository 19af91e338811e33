package config

import (
	"reflect"
	"time"
)

// ChangeSet describes which settings differ between two committed configs.
// The engine uses it to react to exactly the timers and caches a reload
// affects instead of restarting everything.
type ChangeSet struct {
	// Poll: poll cadence changed, poll timer must be re-armed.
	Poll bool
	// RescanHour: daily rescan hour changed, daily timer must be re-armed.
	RescanHour bool
	// Evaluation: lead times, all-day handling or quiet hours changed;
	// an out-of-band due check is warranted.
	Evaluation bool
	// Graph: scan root moved, a full rescan is required.
	Graph bool
	// Logging: log level or outputs changed.
	Logging bool
	// Sink: notification transport settings changed.
	Sink bool
	// Storage: audit trail settings changed.
	Storage bool
}

func (c ChangeSet) Any() bool {
	return c.Poll || c.RescanHour || c.Evaluation || c.Graph || c.Logging || c.Sink || c.Storage
}

// Sections lists the changed areas for logging.
func (c ChangeSet) Sections() []string {
	var out []string
	add := func(on bool, name string) {
		if on {
			out = append(out, name)
		}
	}
	add(c.Poll, "poll")
	add(c.RescanHour, "rescan_hour")
	add(c.Evaluation, "evaluation")
	add(c.Graph, "graph")
	add(c.Logging, "logging")
	add(c.Sink, "sink")
	add(c.Storage, "storage")
	return out
}

// Diff compares two configs at the granularity the engine reacts to.
// Comparison happens on normalized values, so rewriting "poll: 5" to
// "poll: 9" (both clamped to 10s) reports no poll change.
func Diff(oldCfg, newCfg *Config) ChangeSet {
	var cs ChangeSet
	if newCfg == nil {
		return cs
	}
	if oldCfg == nil {
		return ChangeSet{Poll: true, RescanHour: true, Evaluation: true, Graph: true, Logging: true, Sink: true, Storage: true}
	}

	or, nr := oldCfg.Reminders, newCfg.Reminders

	cs.Poll = or.PollInterval() != nr.PollInterval()
	cs.RescanHour = or.RescanHour() != nr.RescanHour()

	cs.Evaluation = !equalInts(or.LeadTimes(), nr.LeadTimes()) ||
		or.AllDayEnabled != nr.AllDayEnabled ||
		or.AllDayTimeOrDefault() != nr.AllDayTimeOrDefault() ||
		or.QuietHours.Enabled != nr.QuietHours.Enabled ||
		or.QuietHours.Start() != nr.QuietHours.Start() ||
		or.QuietHours.End() != nr.QuietHours.End()

	cs.Graph = oldCfg.Graph != newCfg.Graph
	cs.Logging = !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging)
	cs.Sink = !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram)
	cs.Storage = !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage)
	return cs
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseDuration is a small helper for optional duration strings with a default.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// BusyTimeoutOrDefault returns the sqlite busy timeout with a 5s default.
func (s *StorageConfig) BusyTimeoutOrDefault() time.Duration {
	if s == nil {
		return 5 * time.Second
	}
	return parseDuration(s.BusyTimeout, 5*time.Second)
}
