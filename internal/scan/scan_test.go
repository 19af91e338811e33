package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	logx "remindd/pkg/logx"
)

type fakeSource struct {
	marked    []Candidate
	withProp  []Candidate
	markedErr error
	propErr   error
}

func (f *fakeSource) QueryItemsContainingMarker(context.Context, string) ([]Candidate, error) {
	return f.marked, f.markedErr
}

func (f *fakeSource) QueryItemsWithProperty(context.Context, string) ([]Candidate, error) {
	return f.withProp, f.propErr
}

var testNow = time.Date(2025, time.October, 14, 12, 0, 0, 0, time.Local)

func scannedIDs(t *testing.T, p *Pipeline, opts Options) []string {
	t.Helper()
	var out []string
	for _, it := range p.Scan(context.Background(), testNow, opts) {
		out = append(out, it.ID)
	}
	sort.Strings(out)
	return out
}

func TestScanParsesAndFilters(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		marked: []Candidate{
			{ID: "timed", Text: "- call mom SCHEDULED: <2025-10-14 Tue 14:30>", ContainerLabel: "journal"},
			{ID: "no-time", Text: "- just a note", ContainerLabel: "journal"},
		},
		withProp: []Candidate{
			{ID: "prop", Text: "- review PR", PropertyValue: "2025-10-15 09:00", ContainerLabel: "work"},
		},
	}
	p := NewPipeline(src, logx.Nop())

	items := p.Scan(context.Background(), testNow, Options{})
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	byID := map[string]int{}
	for i, it := range items {
		byID[it.ID] = i
	}
	timed := items[byID["timed"]]
	if timed.ScheduledAt.Hour() != 14 || timed.ScheduledAt.Minute() != 30 {
		t.Errorf("timed instant = %v", timed.ScheduledAt)
	}
	if timed.DisplayContent != "call mom" {
		t.Errorf("display = %q", timed.DisplayContent)
	}
	if timed.ContainerLabel != "journal" {
		t.Errorf("container = %q", timed.ContainerLabel)
	}
}

func TestScanRelevanceWindow(t *testing.T) {
	t.Parallel()

	startOfToday := time.Date(2025, time.October, 14, 0, 0, 0, 0, time.Local)
	stamp := func(at time.Time) string {
		return fmt.Sprintf("x %s %s", at.Format("2006-01-02"), at.Format("15:04"))
	}
	src := &fakeSource{marked: []Candidate{
		{ID: "past-6m", Text: stamp(testNow.Add(-6 * time.Minute))},
		{ID: "past-4m", Text: stamp(testNow.Add(-4 * time.Minute))},
		{ID: "horizon-edge", Text: stamp(startOfToday.AddDate(0, 0, 7))},
		// the parser has minute resolution, so one minute past the
		// horizon stands in for "just beyond"
		{ID: "beyond-horizon", Text: stamp(startOfToday.AddDate(0, 0, 7).Add(time.Minute))},
	}}
	p := NewPipeline(src, logx.Nop())

	got := scannedIDs(t, p, Options{})
	want := []string{"horizon-edge", "past-4m"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("window filter mismatch (-want +got):\n%s", diff)
	}
}

func TestScanDeduplicatesFirstWins(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		marked: []Candidate{
			{ID: "a", Text: "first SCHEDULED: <2025-10-14 Tue 14:00>"},
		},
		withProp: []Candidate{
			{ID: "a", Text: "second", PropertyValue: "2025-10-14 16:00"},
		},
	}
	p := NewPipeline(src, logx.Nop())

	items := p.Scan(context.Background(), testNow, Options{})
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].ScheduledAt.Hour() != 14 {
		t.Errorf("marker occurrence should win, got %v", items[0].ScheduledAt)
	}
}

func TestScanAllDayResolution(t *testing.T) {
	t.Parallel()

	src := &fakeSource{marked: []Candidate{
		{ID: "all-day", Text: "- groceries SCHEDULED: <2025-10-15>"},
	}}
	p := NewPipeline(src, logx.Nop())

	if got := scannedIDs(t, p, Options{}); len(got) != 0 {
		t.Errorf("all-day disabled should drop date-only items, got %v", got)
	}

	items := p.Scan(context.Background(), testNow, Options{AllDayEnabled: true, AllDayTime: "08:15"})
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	at := items[0].ScheduledAt
	if at.Hour() != 8 || at.Minute() != 15 {
		t.Errorf("resolved time = %v, want 08:15", at)
	}

	items = p.Scan(context.Background(), testNow, Options{AllDayEnabled: true, AllDayTime: "99:99"})
	if len(items) != 1 || items[0].ScheduledAt.Hour() != 9 {
		t.Errorf("malformed all-day time should fall back to 09:00, got %v", items)
	}
}

func TestScanIdempotent(t *testing.T) {
	t.Parallel()

	src := &fakeSource{marked: []Candidate{
		{ID: "a", Text: "x 2025-10-14 14:00"},
		{ID: "b", Text: "y 2025-10-15 10:00"},
	}}
	p := NewPipeline(src, logx.Nop())

	first := scannedIDs(t, p, Options{})
	second := scannedIDs(t, p, Options{})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated scan differs (-first +second):\n%s", diff)
	}
}

func TestScanQueryFailureDegrades(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		markedErr: errors.New("store offline"),
		withProp: []Candidate{
			{ID: "prop", Text: "z", PropertyValue: "2025-10-14 18:00"},
		},
	}
	p := NewPipeline(src, logx.Nop())

	got := scannedIDs(t, p, Options{})
	if diff := cmp.Diff([]string{"prop"}, got); diff != "" {
		t.Errorf("one failing query should not abort the scan (-want +got):\n%s", diff)
	}

	src.propErr = errors.New("store offline")
	if got := scannedIDs(t, p, Options{}); len(got) != 0 {
		t.Errorf("both queries failing should yield empty, got %v", got)
	}
}

func TestCleanDisplayContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"- call mom SCHEDULED: <2025-10-14 Tue 14:30>", "call mom"},
		{"* task\nscheduled:: 2025-10-14 14:30", "task"},
		{"SCHEDULED: <2025-10-14 Tue 14:30>", "Scheduled reminder"},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		if got := CleanDisplayContent(tc.in); got != tc.want {
			t.Errorf("CleanDisplayContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
