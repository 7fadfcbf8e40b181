// Package gate decides whether an incoming detection deserves a reaction and
// keeps a short history of the detections that got one.
//
// A kind is admitted when it has never been reacted to, or when at least one
// cooldown window has elapsed since its last reaction. Suppressed detections
// are never recorded.
package gate

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidConfig is returned for negative durations or sizes.
var ErrInvalidConfig = errors.New("gate: invalid config")

const (
	DefaultCooldown      = 10 * time.Second
	DefaultHistorySize   = 10
	DefaultHistoryMaxAge = 10 * time.Minute
)

// Config tunes the gate. Zero HistorySize or HistoryMaxAge fall back to the
// defaults.
type Config struct {
	Cooldown      time.Duration
	HistorySize   int
	HistoryMaxAge time.Duration
}

// Record is one reacted-to detection.
type Record struct {
	Kind       string         `json:"kind"`
	Data       map[string]any `json:"data"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Gate holds the per-kind cooldown timers and the rolling history.
type Gate struct {
	mu          sync.Mutex
	cfg         Config
	lastReacted map[string]time.Time
	history     []Record
	now         func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces time.Now; tests drive the gate with a fake clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New validates cfg and returns an empty gate.
func New(cfg Config, opts ...Option) (*Gate, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = DefaultHistoryMaxAge
	}
	g := &Gate{
		cfg:         cfg,
		lastReacted: make(map[string]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Cooldown < 0:
		return fmt.Errorf("%w: cooldown %v is negative", ErrInvalidConfig, cfg.Cooldown)
	case cfg.HistorySize < 0:
		return fmt.Errorf("%w: history size %d is negative", ErrInvalidConfig, cfg.HistorySize)
	case cfg.HistoryMaxAge < 0:
		return fmt.Errorf("%w: history max age %v is negative", ErrInvalidConfig, cfg.HistoryMaxAge)
	}
	return nil
}

// ShouldAlert reports whether kind is outside its cooldown window. It does not
// mutate state.
func (g *Gate) ShouldAlert(kind string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shouldAlert(kind, g.now())
}

func (g *Gate) shouldAlert(kind string, now time.Time) bool {
	last, ok := g.lastReacted[kind]
	if !ok {
		return true
	}
	return now.Sub(last) >= g.cfg.Cooldown
}

// AddEvent records a reaction to kind and restarts its cooldown window.
// Callers pair it with a preceding ShouldAlert; Admit does both at once.
func (g *Gate) AddEvent(kind string, data map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEvent(kind, data, g.now())
}

func (g *Gate) addEvent(kind string, data map[string]any, now time.Time) {
	g.lastReacted[kind] = now
	g.history = append(g.history, Record{Kind: kind, Data: copyData(data), ObservedAt: now})
	g.evict(now)
}

// Admit runs ShouldAlert and, when it passes, AddEvent under a single lock.
func (g *Gate) Admit(kind string, data map[string]any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.shouldAlert(kind, now) {
		return false
	}
	g.addEvent(kind, data, now)
	return true
}

// evict drops records beyond the size bound and records older than the age bound.
func (g *Gate) evict(now time.Time) {
	if over := len(g.history) - g.cfg.HistorySize; over > 0 {
		g.history = append(g.history[:0], g.history[over:]...)
	}
	cutoff := now.Add(-g.cfg.HistoryMaxAge)
	i := 0
	for i < len(g.history) && g.history[i].ObservedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		g.history = append(g.history[:0], g.history[i:]...)
	}
}

// Records returns a copy of the retained history, oldest first.
func (g *Gate) Records() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict(g.now())
	out := make([]Record, len(g.history))
	copy(out, g.history)
	return out
}

// Len returns the number of retained records.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict(g.now())
	return len(g.history)
}

// Clear empties the history. Cooldown timers are left alone.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = g.history[:0]
}

// ResetCooldowns forgets every reaction time.
func (g *Gate) ResetCooldowns() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.lastReacted)
}

// Cooldown returns the current window.
func (g *Gate) Cooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.Cooldown
}

// SetCooldown replaces the window; existing timers are measured against it.
func (g *Gate) SetCooldown(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: cooldown %v is negative", ErrInvalidConfig, d)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.Cooldown = d
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
