package reminder

import (
	"time"

	"remindd/internal/timecodec"
)

// significantlyPast is how far behind the scheduled instant an item may be
// and still fire. Beyond it the window is considered closed, e.g. after the
// machine was asleep.
const significantlyPast = 5 * time.Minute

// QuietHours suppresses due-check firing inside an hour window. Start > End
// describes an overnight window (22 to 7 spans midnight).
type QuietHours struct {
	Enabled bool
	Start   int
	End     int
}

// Suppressed reports whether now falls inside the window.
func (q QuietHours) Suppressed(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	h := now.Hour()
	if q.Start <= q.End {
		return h >= q.Start && h < q.End
	}
	return h >= q.Start || h < q.End
}

// Evaluator answers the per-(item, lead time) due questions. It is a value
// type; the engine rebuilds it from config on every poll tick.
type Evaluator struct {
	Quiet QuietHours
}

// IsDue reports whether the item's lead-time threshold has been reached and
// quiet hours do not suppress it.
func (e Evaluator) IsDue(it Item, leadMinutes int, now time.Time) bool {
	if it.ScheduledAt.IsZero() {
		return false
	}
	threshold := it.ScheduledAt.Add(-time.Duration(leadMinutes) * time.Minute)
	if now.Before(threshold) {
		return false
	}
	return !e.Quiet.Suppressed(now)
}

// IsSignificantlyPast is a hard veto on firing: true when the scheduled
// instant is more than five minutes behind now, regardless of IsDue.
func (e Evaluator) IsSignificantlyPast(it Item, now time.Time) bool {
	return it.ScheduledAt.Before(now.Add(-significantlyPast))
}

// Key returns the dedup-ledger key for the pair, or false when the item has
// no identity or no resolved instant.
func (e Evaluator) Key(it Item, leadMinutes int) (string, bool) {
	return timecodec.NotificationKey(it.ID, it.ScheduledAt, leadMinutes)
}
