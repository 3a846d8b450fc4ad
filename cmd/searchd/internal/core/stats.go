package core

import "sync/atomic"

// Stats holds process-wide counters shared by the accept loop and handlers.
type Stats struct {
	activeConnections atomic.Int64
	totalConnections  atomic.Int64
	queries           atomic.Int64
	hits              atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	Queries           int64 `json:"queries"`
	Hits              int64 `json:"hits"`
}

func (s *Stats) connectionOpened() {
	s.activeConnections.Add(1)
	s.totalConnections.Add(1)
}

func (s *Stats) connectionClosed() {
	s.activeConnections.Add(-1)
}

// RecordQuery counts one answered query.
func (s *Stats) RecordQuery(found bool) {
	s.queries.Add(1)
	if found {
		s.hits.Add(1)
	}
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ActiveConnections: s.activeConnections.Load(),
		TotalConnections:  s.totalConnections.Load(),
		Queries:           s.queries.Load(),
		Hits:              s.hits.Load(),
	}
}
