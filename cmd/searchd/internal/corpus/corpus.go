// Package corpus answers presence queries against a flat text file, either
// from a snapshot taken at startup or by re-reading the file on every query.
package corpus

import (
	"log/slog"
	"strings"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
)

// Result is the outcome of a search.
type Result int

const (
	NotFound Result = iota
	Found
)

// Wire tokens, one per Result.
const (
	TokenExists   = "STRING EXISTS"
	TokenNotFound = "STRING NOT FOUND"
)

func (r Result) String() string {
	if r == Found {
		return TokenExists
	}
	return TokenNotFound
}

func resultOf(ok bool) Result {
	if ok {
		return Found
	}
	return NotFound
}

// Mode tells which freshness policy a Searcher follows.
type Mode string

const (
	ModeStatic  Mode = "static"
	ModeDynamic Mode = "dynamic"
)

// Searcher is implemented by *Static and *Dynamic. Search never fails:
// corpus I/O problems are logged and reported as NotFound.
type Searcher interface {
	Search(query string) Result
	Mode() Mode
	MatchMode() config.MatchMode
}

// Options configures New.
type Options struct {
	Path      string
	Reread    bool
	MatchMode config.MatchMode
	Logger    *slog.Logger
}

// New picks the Searcher variant once, from Options.Reread.
func New(opts Options) Searcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MatchMode == "" {
		opts.MatchMode = config.MatchLine
	}
	if opts.Reread {
		return NewDynamic(opts)
	}
	return NewStatic(opts)
}

// normalizeQuery trims the query; ok is false when nothing is left to search.
func normalizeQuery(query string) (string, bool) {
	q := strings.TrimSpace(query)
	return q, q != ""
}
