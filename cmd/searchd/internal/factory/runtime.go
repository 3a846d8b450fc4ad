package factory

import (
	"log/slog"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/corpus"
)

// NewSearcher picks the corpus variant for the configured freshness mode.
func NewSearcher(cfg *config.Settings, logger *slog.Logger) corpus.Searcher {
	return corpus.New(corpus.Options{
		Path:      cfg.CorpusPath,
		Reread:    cfg.RereadOnQuery,
		MatchMode: cfg.MatchMode,
		Logger:    logger,
	})
}

// NewDispatcher returns an unbounded dispatcher unless max_connections is set.
func NewDispatcher(cfg *config.Settings, logger *slog.Logger) core.Dispatcher {
	if cfg.MaxConnections > 0 {
		logger.Info("Connection admission control enabled", "max_connections", cfg.MaxConnections)
		return core.NewPoolDispatcher(cfg.MaxConnections)
	}
	return core.GoroutineDispatcher{}
}
