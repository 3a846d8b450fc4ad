package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/api"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/corpus"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/factory"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/logger"
	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/protocol"
)

func main() {
	configPath := flag.String("config", config.GetEnv("XSEARCH_CONFIG", "config/server_config.conf"), "path to the server configuration file")
	flag.Parse()

	logger.Init()

	// Load configuration
	cfg, err := config.Load(*configPath, logger.Default())
	if err != nil {
		if errors.Is(err, core.ErrFileNotFound) {
			logger.Fatal("Configuration file not found", "path", *configPath, "error", err)
		}
		logger.Fatal("Configuration error", "path", *configPath, "error", err)
	}
	if cfg.Debug {
		logger.SetDebug(true)
	}
	log := logger.Default()
	log.Info("Starting xsearch server...", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Corpus is loaded before the listener comes up.
	searcher := factory.NewSearcher(cfg, log)
	log.Info("Corpus ready", "mode", string(searcher.Mode()), "match", string(searcher.MatchMode()))

	// TLS is optional and never fatal: a broken setup degrades to plaintext.
	tlsConfig, tlsOutcome := factory.NewTLSFactory(cfg, log).BuildServerTLS(ctx)

	stats := &core.Stats{}
	server := &core.Server{
		Address:    cfg.Address(),
		TLSConfig:  tlsConfig,
		Dispatcher: factory.NewDispatcher(cfg, log),
		Stats:      stats,
		Logger:     log,
	}
	server.ConnectionHandler = &protocol.SearchHandler{
		Searcher:     searcher,
		Stop:         server,
		Stats:        stats,
		PollInterval: time.Second,
		Logger:       log,
	}

	if cfg.HealthAddr != "" {
		healthServer := api.NewHealthServer(cfg.HealthAddr, server, stats, api.Info{
			CorpusMode: string(searcher.Mode()),
			MatchMode:  string(searcher.MatchMode()),
			TLS:        tlsOutcome,
		}, log)
		healthServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthServer.Stop(shutdownCtx); err != nil {
				log.Warn("Health server shutdown", "error", err)
			}
		}()
	}

	if static, ok := searcher.(*corpus.Static); ok {
		go reloadOnHangup(ctx, static)
	}

	// Start serving (blocking)
	if err := server.Serve(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

// reloadOnHangup re-reads a static corpus each time SIGHUP arrives.
func reloadOnHangup(ctx context.Context, static *corpus.Static) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Debug("SIGHUP received, reloading corpus")
			static.Reload()
			logger.Info("Corpus reloaded", "lines", static.Len())
		}
	}
}
