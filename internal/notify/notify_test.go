package notify

import (
	"context"
	"strings"
	"testing"
)

func TestRenderText(t *testing.T) {
	t.Parallel()

	n := Notification{Title: "Reminder: work", Body: "Standup\nToday at 09:30", Severity: SeverityInfo}
	if got := renderText(n); got != "Reminder: work\nStandup\nToday at 09:30" {
		t.Errorf("renderText = %q", got)
	}

	n.Severity = SeverityWarning
	if got := renderText(n); !strings.HasPrefix(got, "⚠️ Reminder: work") {
		t.Errorf("warning prefix missing: %q", got)
	}

	n = Notification{Title: "Reminder", Severity: SeverityInfo}
	if got := renderText(n); got != "Reminder" {
		t.Errorf("bodyless render = %q", got)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text split: %v", got)
	}

	// prefers the newline near the end of the window
	s := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 40)
	got := splitText(s, 60)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if !strings.HasSuffix(got[0], "\n") {
		t.Errorf("first chunk should end at the newline: %q", got[0])
	}
	if strings.Join(got, "") != s {
		t.Error("chunks do not reassemble to the input")
	}

	// hard split when no newline is available
	s = strings.Repeat("x", 130)
	got = splitText(s, 50)
	if len(got) != 3 || strings.Join(got, "") != s {
		t.Errorf("hard split chunks = %d", len(got))
	}
}

func TestResolveRetries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want int
	}{
		{in: 0, want: 2},  // unset takes the default
		{in: -1, want: 0}, // negative disables retries
		{in: -5, want: 0},
		{in: 1, want: 1},
		{in: 4, want: 4},
	}
	for _, tc := range cases {
		if got := resolveRetries(tc.in); got != tc.want {
			t.Errorf("resolveRetries(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPollerExitErr(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pollerExitErr(ctx); err != nil {
		t.Errorf("ordered shutdown should not report an error, got %v", err)
	}

	// a live context means the poller gave up on its own; the restart loop
	// only re-runs on error
	if err := pollerExitErr(context.Background()); err == nil {
		t.Error("unexpected poller exit must surface an error")
	}
}
