package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/core"
)

// StatusSource is what the health endpoints report on. *core.Server
// satisfies it.
type StatusSource interface {
	State() core.State
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	State      string            `json:"state"`
	CorpusMode string            `json:"corpus_mode"`
	MatchMode  string            `json:"match_mode"`
	TLS        string            `json:"tls"`
	Counters   core.StatsSnapshot `json:"counters"`
}

// Info carries the static facts shown by /stats.
type Info struct {
	CorpusMode string
	MatchMode  string
	TLS        core.TLSOutcome
}

type HealthServer struct {
	server *http.Server
	source StatusSource
	stats  *core.Stats
	info   Info
	logger *slog.Logger
}

func NewHealthServer(addr string, source StatusSource, stats *core.Stats, info Info, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = &core.Stats{}
	}
	hs := &HealthServer{source: source, stats: stats, info: info, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", hs.handleHealth)
	r.Get("/ready", hs.handleReady)
	r.Get("/stats", hs.handleStats)

	hs.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return hs
}

// Handler exposes the router, mainly for tests.
func (s *HealthServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HealthServer) Start() {
	go func() {
		s.logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.source != nil && s.source.State() == core.StateRunning {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready"))
}

func (s *HealthServer) handleStats(w http.ResponseWriter, r *http.Request) {
	state := core.StateCreated
	if s.source != nil {
		state = s.source.State()
	}
	resp := StatsResponse{
		State:      state.String(),
		CorpusMode: s.info.CorpusMode,
		MatchMode:  s.info.MatchMode,
		TLS:        s.info.TLS.String(),
		Counters:   s.stats.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode stats", "error", err)
	}
}
