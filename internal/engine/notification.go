package engine

import (
	"fmt"
	"time"

	"remindd/internal/notify"
	"remindd/internal/reminder"
	"remindd/internal/timecodec"
)

// buildNotification renders the user-facing message for one (item, lead)
// pair. Overdue reminders escalate: warning severity, sticky, longer
// timeout.
func buildNotification(it reminder.Item, lead int, now time.Time) notify.Notification {
	overdue := now.After(it.ScheduledAt)
	timeStr := timecodec.FormatForNotification(it.ScheduledAt, now)

	title := "Reminder: " + it.ContainerLabel
	body := it.DisplayContent
	switch {
	case overdue:
		title = "OVERDUE: " + it.ContainerLabel
		body += "\n\nThis was scheduled for: " + timeStr
	case lead > 0:
		body += fmt.Sprintf("\n\nScheduled for: %s (in %d minutes)", timeStr, lead)
	default:
		body += "\n\nScheduled for: " + timeStr
	}

	n := notify.Notification{
		Title:    title,
		Body:     body,
		Severity: notify.SeverityInfo,
		Options: notify.Options{
			Timeout:  normalTimeout,
			DedupTag: fmt.Sprintf("%s_%d", it.ID, lead),
		},
	}
	if overdue {
		n.Severity = notify.SeverityWarning
		n.Options.Timeout = overdueTimeout
		n.Options.RequireInteraction = true
	}
	return n
}
