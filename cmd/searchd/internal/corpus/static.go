package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
)

// snapshot is immutable once published. lines and text always come from
// the same read of the file.
type snapshot struct {
	lines map[string]struct{}
	text  string
	// skipped counts lines dropped for not being valid UTF-8.
	skipped int
}

var emptySnapshot = &snapshot{lines: map[string]struct{}{}}

// Static serves queries from a snapshot taken at construction. The file is
// not consulted again unless Reload is called (or, in substring mode, as a
// last resort when the snapshot misses).
type Static struct {
	path   string
	match  config.MatchMode
	logger *slog.Logger
	snap   atomic.Pointer[snapshot]
}

// NewStatic loads the corpus once. A missing or unreadable file yields an
// empty snapshot rather than an error.
func NewStatic(opts Options) *Static {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MatchMode == "" {
		opts.MatchMode = config.MatchLine
	}
	s := &Static{path: opts.Path, match: opts.MatchMode, logger: opts.Logger}
	s.Reload()
	return s
}

// Reload re-reads the corpus file and atomically replaces the snapshot.
// Concurrent searches see either the old or the new snapshot, never a mix.
func (s *Static) Reload() {
	snap, err := loadSnapshot(s.path)
	switch {
	case err != nil:
		s.logger.Warn("Failed to load corpus, serving empty cache", "path", s.path, "error", err)
		snap = emptySnapshot
	case len(snap.lines) == 0:
		s.logger.Warn("No readable content found in corpus", "path", s.path, "skipped", snap.skipped)
	default:
		s.logger.Info("Corpus loaded", "path", s.path, "unique_lines", len(snap.lines), "match_mode", s.match)
	}
	if snap.skipped > 0 {
		s.logger.Warn("Skipped corpus lines that are not valid UTF-8", "path", s.path, "skipped", snap.skipped)
	}
	s.snap.Store(snap)
}

// Len returns the number of unique lines in the current snapshot.
func (s *Static) Len() int {
	return len(s.snap.Load().lines)
}

func (s *Static) Search(query string) Result {
	q, ok := normalizeQuery(query)
	if !ok {
		s.logger.Debug("Empty search string provided")
		return NotFound
	}
	snap := s.snap.Load()

	if s.match == config.MatchLine {
		_, found := snap.lines[q]
		return resultOf(found)
	}

	if snap.text != "" && strings.Contains(snap.text, q) {
		return Found
	}
	if _, found := snap.lines[q]; found {
		return Found
	}
	found, err := ScanFile(s.path, []byte(q), config.MatchSubstring)
	if err != nil {
		s.logger.Debug("Fallback corpus scan failed", "path", s.path, "error", err)
		return NotFound
	}
	return resultOf(found)
}

func (s *Static) Mode() Mode { return ModeStatic }

func (s *Static) MatchMode() config.MatchMode { return s.match }

func loadSnapshot(path string) (*snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, errNotRegular)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap := &snapshot{lines: make(map[string]struct{})}
	var kept []string
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 && !utf8.ValidString(line) {
			snap.skipped++
		} else if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				snap.lines[trimmed] = struct{}{}
				kept = append(kept, line)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	snap.text = strings.Join(kept, "\n")
	return snap, nil
}
