package session

import (
	"maps"
	"sync"
	"time"
)

// Stats counts detections seen during one epoch, whether or not they were
// reacted to.
type Stats struct {
	mu        sync.Mutex
	startedAt time.Time
	observed  map[string]int
	reacted   map[string]int
}

// StatsSnapshot is the shape handed to the feedback prompt and the HTTP API.
type StatsSnapshot struct {
	StartedAt       time.Time      `json:"started_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	Counts          map[string]int `json:"counts"`
	Reactions       map[string]int `json:"reactions"`
}

func newStats(start time.Time) *Stats {
	return &Stats{
		startedAt: start,
		observed:  make(map[string]int),
		reacted:   make(map[string]int),
	}
}

// Observe counts one detection of kind.
func (s *Stats) Observe(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed[kind]++
}

// Reacted counts one reaction to kind.
func (s *Stats) Reacted(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reacted[kind]++
}

// Snapshot copies the counters as of now.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := now.Sub(s.startedAt)
	if d < 0 {
		d = 0
	}
	return StatsSnapshot{
		StartedAt:       s.startedAt,
		DurationSeconds: d.Seconds(),
		Counts:          maps.Clone(s.observed),
		Reactions:       maps.Clone(s.reacted),
	}
}
