// Package notify defines the notification sink contract and its
// implementations: Telegram for real deployments, a log sink for sinkless
// runs and tests.
package notify

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Options tune how a single notification is presented.
type Options struct {
	// Timeout is how long the notification should stay visible.
	Timeout time.Duration
	// RequireInteraction asks the sink to keep the notification until the
	// user acts on it. Used for overdue reminders.
	RequireInteraction bool
	// DedupTag lets the sink collapse repeats of the same logical
	// notification.
	DedupTag string
}

type Notification struct {
	Title    string
	Body     string
	Severity Severity
	Options  Options
}

// Sink delivers a notification to the user. Dispatch blocks until the sink
// has accepted or rejected the notification; the caller decides what a
// failure means (the engine retries on the next poll tick).
type Sink interface {
	Dispatch(ctx context.Context, n Notification) error
}
