package graph

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	logx "remindd/pkg/logx"
)

func writeGraph(t *testing.T, files map[string]string) *Dir {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return NewDir(root, logx.Nop())
}

func TestQueryItemsContainingMarker(t *testing.T) {
	t.Parallel()

	d := writeGraph(t, map[string]string{
		"journals/2025_10_14.md": "- morning standup SCHEDULED: <2025-10-14 Tue 09:30>\n- lunch\n- review SCHEDULED: <2025-10-14 Tue 16:00>\n  with notes indented\n",
		"pages/errands.md":       "- buy stamps\n",
	})

	got, err := d.QueryItemsContainingMarker(context.Background(), "SCHEDULED:")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	var texts []string
	for _, c := range got {
		if c.ID == "" {
			t.Error("candidate without id")
		}
		if c.ContainerLabel != "2025_10_14" {
			t.Errorf("container = %q", c.ContainerLabel)
		}
		texts = append(texts, c.Text)
	}
	sort.Strings(texts)
	want := []string{
		"- morning standup SCHEDULED: <2025-10-14 Tue 09:30>",
		"- review SCHEDULED: <2025-10-14 Tue 16:00>\n  with notes indented",
	}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("texts mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryItemsWithProperty(t *testing.T) {
	t.Parallel()

	d := writeGraph(t, map[string]string{
		"pages/project.md": "- kickoff meeting\n  scheduled:: 2025-10-15 10:00\n- untagged task\n- deadline:: not the property\n",
	})

	got, err := d.QueryItemsWithProperty(context.Background(), "scheduled")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.PropertyValue != "2025-10-15 10:00" {
		t.Errorf("property value = %q", c.PropertyValue)
	}
	if c.ContainerLabel != "project" {
		t.Errorf("container = %q", c.ContainerLabel)
	}
}

func TestStableBlockIDs(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"journals/2025_10_14.md": "- ship release SCHEDULED: <2025-10-14 Tue 17:00>\n",
	}
	d := writeGraph(t, files)

	first, err := d.QueryItemsContainingMarker(context.Background(), "SCHEDULED:")
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.QueryItemsContainingMarker(context.Background(), "SCHEDULED:")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Errorf("id not stable across reads: %v vs %v", first, second)
	}
}

func TestWalkSkipsMetadataAndNonMarkdown(t *testing.T) {
	t.Parallel()

	d := writeGraph(t, map[string]string{
		"logseq/config.edn":      "SCHEDULED: looks like a marker",
		".git/objects/x.md":      "- SCHEDULED: <2025-10-14 Tue 09:00>",
		"pages/real.md":          "- real SCHEDULED: <2025-10-14 Tue 09:00>",
		"pages/attachment.txt":   "- SCHEDULED: <2025-10-14 Tue 09:00>",
	})

	got, err := d.QueryItemsContainingMarker(context.Background(), "SCHEDULED:")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ContainerLabel != "real" {
		t.Errorf("expected only pages/real.md to match, got %v", got)
	}
}

func TestPageLevelProperties(t *testing.T) {
	t.Parallel()

	// front matter before the first bullet forms its own block
	d := writeGraph(t, map[string]string{
		"pages/trip.md": "scheduled:: 2025-10-16 07:00\ntags:: travel\n- pack bags\n",
	})

	got, err := d.QueryItemsWithProperty(context.Background(), "scheduled")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].PropertyValue != "2025-10-16 07:00" {
		t.Errorf("property value = %q", got[0].PropertyValue)
	}
}
