// Package graph reads a Logseq-style markdown graph from disk and serves
// the document-store queries the scan pipeline needs. Blocks are top-level
// outline bullets; each query re-reads the files so a scan always sees the
// current graph.
package graph

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindd/internal/scan"
	logx "remindd/pkg/logx"
)

const propertySuffix = "::"

// Dir is a scan.Source over a directory tree of .md outline files
// (typically journals/ and pages/).
type Dir struct {
	mu   sync.RWMutex
	root string
	log  logx.Logger
}

func NewDir(root string, log logx.Logger) *Dir {
	return &Dir{root: root, log: log.With(logx.String("component", "graph"))}
}

// SetRoot re-points the source at a different graph directory. Takes effect
// on the next query.
func (d *Dir) SetRoot(root string) {
	d.mu.Lock()
	d.root = root
	d.mu.Unlock()
}

func (d *Dir) rootDir() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// block is one outline bullet plus its indented continuation lines.
type block struct {
	text  string
	page  string
	props map[string]string
}

// QueryItemsContainingMarker returns every block whose text contains marker.
func (d *Dir) QueryItemsContainingMarker(ctx context.Context, marker string) ([]scan.Candidate, error) {
	var out []scan.Candidate
	err := d.walk(ctx, func(b block) {
		if !strings.Contains(b.text, marker) {
			return
		}
		out = append(out, scan.Candidate{
			ID:             blockID(b),
			Text:           b.text,
			ContainerLabel: b.page,
		})
	})
	return out, err
}

// QueryItemsWithProperty returns every block carrying the named
// `property::` value.
func (d *Dir) QueryItemsWithProperty(ctx context.Context, property string) ([]scan.Candidate, error) {
	var out []scan.Candidate
	err := d.walk(ctx, func(b block) {
		val, ok := b.props[property]
		if !ok {
			return
		}
		out = append(out, scan.Candidate{
			ID:             blockID(b),
			Text:           b.text,
			ContainerLabel: b.page,
			PropertyValue:  val,
		})
	})
	return out, err
}

// walk visits every block of every .md file under the root. A file that
// fails to read is logged and skipped; only a broken walk itself is an
// error.
func (d *Dir) walk(ctx context.Context, visit func(block)) error {
	root := d.rootDir()
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			// skip hidden dirs and the graph's own metadata
			if path != root && (strings.HasPrefix(name, ".") || name == "logseq") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}
		blocks, err := d.readFile(root, path)
		if err != nil {
			d.log.Warn("graph file unreadable; skipping", logx.String("path", path), logx.Err(err))
			return nil
		}
		for _, b := range blocks {
			visit(b)
		}
		return nil
	})
}

// readFile splits an outline file into blocks. A block starts at a
// top-level bullet ("- " or "* " with no indentation) and absorbs every
// following line until the next top-level bullet. Leading non-bullet lines
// (front matter, page properties) form a block of their own so page-level
// scheduled:: properties are still found.
func (d *Dir) readFile(root, path string) ([]block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	page := pageLabel(root, path)
	var (
		blocks []block
		cur    []string
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(cur, "\n"), "\n")
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, block{text: text, page: page, props: parseProps(cur)})
		}
		cur = nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if isTopLevelBullet(line) {
			flush()
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return blocks, nil
}

func isTopLevelBullet(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") ||
		line == "-" || line == "*"
}

// parseProps extracts `key:: value` lines from a block.
func parseProps(lines []string) map[string]string {
	var props map[string]string
	for _, line := range lines {
		s := strings.TrimSpace(line)
		s = strings.TrimPrefix(s, "- ")
		s = strings.TrimPrefix(s, "* ")
		i := strings.Index(s, propertySuffix)
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(s[:i])
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		if props == nil {
			props = make(map[string]string)
		}
		props[key] = strings.TrimSpace(s[i+len(propertySuffix):])
	}
	return props
}

// pageLabel derives the human-readable container name from the file path:
// the stem of the file name, with Logseq's URL-style escapes undone.
func pageLabel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	stem := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	stem = strings.ReplaceAll(stem, "%3A", ":")
	return strings.ReplaceAll(stem, "___", "/")
}

// blockID is a stable identifier derived from the page and the block text,
// so an unchanged block keeps its id (and its dedup history) across scans.
func blockID(b block) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.page))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(b.text))
	return fmt.Sprintf("blk-%016x", h.Sum64())
}
