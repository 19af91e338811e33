// Package reminder holds the reminder candidates, the due/quiet-hours
// evaluator, and the dedup ledger that keeps each (item, lead time) pair to
// a single notification per session.
package reminder

import "time"

// Item is a single reminder candidate produced by a scan. Items are
// immutable; every scan replaces the whole set.
type Item struct {
	// ID is the stable identifier of the source block.
	ID string
	// SourceText is the raw block text the schedule was extracted from.
	SourceText string
	// ContainerLabel names the page or journal the block lives in; used in
	// notification titles.
	ContainerLabel string
	// DisplayContent is the cleaned text for the notification body.
	DisplayContent string
	// ScheduledAt is the fully resolved instant, local clock. All-day items
	// are resolved before they become an Item.
	ScheduledAt time.Time
}
