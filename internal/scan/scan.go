// Package scan turns raw blocks from a document source into the reminder
// candidate set: parse the schedule, clean the display text, keep only items
// inside the relevance window.
package scan

import (
	"context"
	"regexp"
	"strings"
	"time"

	"remindd/internal/reminder"
	"remindd/internal/timecodec"
	logx "remindd/pkg/logx"
)

// Marker and Property are the scheduling annotations queried from the source.
const (
	Marker   = "SCHEDULED:"
	Property = "scheduled"
)

// Candidate is a raw block returned by a source query.
type Candidate struct {
	ID             string
	Text           string
	ContainerLabel string
	// PropertyValue is set only for property-query results.
	PropertyValue string
}

// Source is the document store the pipeline reads from. Both queries are
// read-only; an error from either degrades to zero results for that query.
type Source interface {
	QueryItemsContainingMarker(ctx context.Context, marker string) ([]Candidate, error)
	QueryItemsWithProperty(ctx context.Context, property string) ([]Candidate, error)
}

// Options carries the settings a single scan depends on.
type Options struct {
	AllDayEnabled bool
	// AllDayTime is the "HH:MM" resolution for date-only schedules.
	AllDayTime string
}

// relevance window bounds relative to now
const (
	recentPastTolerance = 5 * time.Minute
	forwardHorizonDays  = 7
)

var (
	markerCleanupRe   = regexp.MustCompile(`SCHEDULED:\s*<[^>]+>`)
	propertyCleanupRe = regexp.MustCompile(`(?m)^\s*scheduled::\s*[^\n]*$`)
	bulletCleanupRe   = regexp.MustCompile(`^\s*[-*]\s*`)
)

type Pipeline struct {
	src Source
	log logx.Logger
}

func NewPipeline(src Source, log logx.Logger) *Pipeline {
	return &Pipeline{src: src, log: log.With(logx.String("component", "scan"))}
}

// Scan queries both annotation forms, parses each candidate, and returns the
// deduplicated, window-filtered item set. It never returns an error: a
// failing query contributes nothing and a failing item is dropped.
func (p *Pipeline) Scan(ctx context.Context, now time.Time, opts Options) []reminder.Item {
	marked, err := p.src.QueryItemsContainingMarker(ctx, Marker)
	if err != nil {
		p.log.Warn("marker query failed", logx.Err(err))
		marked = nil
	}
	withProp, err := p.src.QueryItemsWithProperty(ctx, Property)
	if err != nil {
		p.log.Warn("property query failed", logx.Err(err))
		withProp = nil
	}

	seen := make(map[string]struct{}, len(marked)+len(withProp))
	items := make([]reminder.Item, 0, len(marked)+len(withProp))
	lower := now.Add(-recentPastTolerance)
	upper := startOfDay(now).AddDate(0, 0, forwardHorizonDays)

	for _, c := range append(marked, withProp...) {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		at, ok := p.resolve(c, opts)
		if !ok {
			continue
		}
		if at.Before(lower) || at.After(upper) {
			continue
		}
		seen[c.ID] = struct{}{}
		items = append(items, reminder.Item{
			ID:             c.ID,
			SourceText:     c.Text,
			ContainerLabel: c.ContainerLabel,
			DisplayContent: CleanDisplayContent(c.Text),
			ScheduledAt:    at,
		})
	}
	return items
}

// resolve extracts the scheduled instant: block text first, then the
// property value, then the all-day forms when enabled.
func (p *Pipeline) resolve(c Candidate, opts Options) (time.Time, bool) {
	if at, ok := timecodec.ParseScheduledInstant(c.Text); ok {
		return at, true
	}
	if c.PropertyValue != "" {
		if at, ok := timecodec.ParseScheduledInstant(c.PropertyValue); ok {
			return at, true
		}
	}
	if !opts.AllDayEnabled {
		return time.Time{}, false
	}
	if d, ok := timecodec.ParseAllDayDate(c.Text); ok {
		return timecodec.ResolveAllDayInstant(d, opts.AllDayTime), true
	}
	if c.PropertyValue != "" {
		if d, ok := timecodec.ParseAllDayDate(c.PropertyValue); ok {
			return timecodec.ResolveAllDayInstant(d, opts.AllDayTime), true
		}
	}
	return time.Time{}, false
}

// CleanDisplayContent strips scheduling markup and bullet markers from block
// text. An empty result falls back to a generic label.
func CleanDisplayContent(text string) string {
	s := markerCleanupRe.ReplaceAllString(text, "")
	s = propertyCleanupRe.ReplaceAllString(s, "")
	s = bulletCleanupRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "Scheduled reminder"
	}
	return s
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
