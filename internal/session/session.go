// Package session holds the state that lives for one connected client: the
// active persona, the session epoch and statistics, and the outgoing audio
// track that is bound on the first synthesized frame.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

const DefaultPersonaName = "Strict Devil Instructor"

// Persona is the character voice applied to generated text.
type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Descriptor renders the persona for the system prompt.
func (p Persona) Descriptor() string {
	if p.Description == "" {
		return p.Name
	}
	return fmt.Sprintf("%s\n(Character Description: %s)", p.Name, p.Description)
}

// PersonaFromData reads a PERSONALITY_UPDATE payload.
func PersonaFromData(data map[string]any) Persona {
	p := Persona{Name: "Unknown"}
	if name, ok := data["personality"].(string); ok && name != "" {
		p.Name = name
	}
	if desc, ok := data["description"].(string); ok {
		p.Description = desc
	}
	return p
}

// Context is the per-connection session state.
type Context struct {
	mu      sync.RWMutex
	persona Persona
	epoch   int
	stats   *Stats
	now     func() time.Time

	audioMu sync.Mutex
	audio   voice.Track // nil until the first frame arrives
	format  voice.Format
	open    voice.TrackOpener
}

// New returns a session in its first epoch. open publishes the outgoing track
// and may be nil when the process never speaks (tests, dry runs).
func New(persona Persona, open voice.TrackOpener, now func() time.Time) *Context {
	if now == nil {
		now = time.Now
	}
	if persona.Name == "" {
		persona.Name = DefaultPersonaName
	}
	return &Context{
		persona: persona,
		epoch:   1,
		stats:   newStats(now()),
		now:     now,
		open:    open,
	}
}

// Persona returns the active persona.
func (c *Context) Persona() Persona {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persona
}

// SetPersona replaces the persona and reports whether it changed.
func (c *Context) SetPersona(p Persona) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.persona == p {
		return false
	}
	c.persona = p
	return true
}

// Restart begins a new epoch with fresh statistics.
func (c *Context) Restart() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.stats = newStats(c.now())
	return c.epoch
}

// Epoch counts SESSION_START events, starting at 1.
func (c *Context) Epoch() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Stats returns the current epoch's statistics.
func (c *Context) Stats() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Snapshot summarizes the current epoch's statistics.
func (c *Context) Snapshot() StatsSnapshot {
	return c.Stats().Snapshot(c.now())
}

var ErrNoAudioOutput = errors.New("session: no audio output configured")

// BindAudio returns the outgoing track, opening it for format on first use.
// Once bound the track is kept for the life of the process; later calls with
// a different format reuse it. A failed open leaves the track unbound.
func (c *Context) BindAudio(ctx context.Context, format voice.Format) (voice.Track, error) {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	if c.audio != nil {
		return c.audio, nil
	}
	if c.open == nil {
		return nil, ErrNoAudioOutput
	}
	track, err := c.open(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("open audio track: %w", err)
	}
	c.audio = track
	c.format = format
	return track, nil
}

// AudioFormat reports the bound track's format.
func (c *Context) AudioFormat() (voice.Format, bool) {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	return c.format, c.audio != nil
}
