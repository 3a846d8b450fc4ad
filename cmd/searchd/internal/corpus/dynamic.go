package corpus

import (
	"log/slog"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
)

// Dynamic never caches: every query scans the file as it is on disk now.
type Dynamic struct {
	path   string
	match  config.MatchMode
	logger *slog.Logger
}

// NewDynamic creates a Searcher that re-reads the corpus for every query.
func NewDynamic(opts Options) *Dynamic {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MatchMode == "" {
		opts.MatchMode = config.MatchLine
	}
	opts.Logger.Info("Corpus configured in dynamic mode", "path", opts.Path, "match_mode", opts.MatchMode)
	return &Dynamic{path: opts.Path, match: opts.MatchMode, logger: opts.Logger}
}

func (d *Dynamic) Search(query string) Result {
	q, ok := normalizeQuery(query)
	if !ok {
		d.logger.Debug("Empty search string provided")
		return NotFound
	}
	found, err := ScanFile(d.path, []byte(q), d.match)
	if err != nil {
		d.logger.Warn("Corpus scan failed", "path", d.path, "error", err)
		return NotFound
	}
	return resultOf(found)
}

func (d *Dynamic) Mode() Mode { return ModeDynamic }

func (d *Dynamic) MatchMode() config.MatchMode { return d.match }
