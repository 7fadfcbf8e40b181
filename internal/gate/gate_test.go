package gate_test

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/procrastihator/internal/gate"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGate(t *testing.T, cfg gate.Config, clk *fakeClock) *gate.Gate {
	t.Helper()
	g, err := gate.New(cfg, gate.WithClock(clk.Now))
	require.NoError(t, err)
	return g
}

func TestCooldownScenario(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: 10 * time.Second}, clk)

	g.AddEvent(packet.PhoneDetected, map[string]any{})

	clk.Advance(5 * time.Second)
	assert.False(t, g.ShouldAlert(packet.PhoneDetected), "t=5 is inside the window")

	clk.Advance(6 * time.Second)
	assert.True(t, g.ShouldAlert(packet.PhoneDetected), "t=11 is past the window")
}

func TestCooldownBoundaries(t *testing.T) {
	const window = 10 * time.Second
	offsets := []struct {
		at   time.Duration
		want bool
	}{
		{0, false},
		{time.Nanosecond, false},
		{window - time.Nanosecond, false},
		{window, true},
		{window + time.Second, true},
		{time.Hour, true},
	}
	for _, o := range offsets {
		clk := newClock()
		g := newGate(t, gate.Config{Cooldown: window}, clk)
		g.AddEvent(packet.Sleeping, nil)
		clk.Advance(o.at)
		assert.Equal(t, o.want, g.ShouldAlert(packet.Sleeping), "offset %v", o.at)
	}
}

func TestShouldAlert_UnknownKindAlwaysTrue(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: time.Hour}, clk)
	assert.True(t, g.ShouldAlert(packet.Absent))

	g.AddEvent(packet.PhoneDetected, nil)
	assert.True(t, g.ShouldAlert(packet.Absent), "cooldown is per kind")
	assert.False(t, g.ShouldAlert(packet.PhoneDetected))
}

func TestShouldAlert_DoesNotMutate(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: time.Minute}, clk)
	for i := 0; i < 3; i++ {
		assert.True(t, g.ShouldAlert(packet.GazeAway))
	}
	assert.Equal(t, 0, g.Len())
}

func TestAdmit(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: 10 * time.Second}, clk)

	assert.True(t, g.Admit(packet.PhoneDetected, map[string]any{"n": float64(1)}))
	assert.False(t, g.Admit(packet.PhoneDetected, map[string]any{"n": float64(2)}))
	assert.Equal(t, 1, g.Len(), "suppressed detections are not recorded")

	clk.Advance(10 * time.Second)
	assert.True(t, g.Admit(packet.PhoneDetected, nil))
	assert.Equal(t, 2, g.Len())
}

func TestZeroCooldown(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{}, clk)
	assert.True(t, g.Admit(packet.Absent, nil))
	assert.True(t, g.Admit(packet.Absent, nil))
}

func TestNew_RejectsNegative(t *testing.T) {
	for _, cfg := range []gate.Config{
		{Cooldown: -time.Second},
		{HistorySize: -1},
		{HistoryMaxAge: -time.Minute},
	} {
		_, err := gate.New(cfg)
		assert.ErrorIs(t, err, gate.ErrInvalidConfig)
	}
}

func TestSetCooldown(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: time.Minute}, clk)
	g.AddEvent(packet.Absent, nil)
	clk.Advance(20 * time.Second)
	assert.False(t, g.ShouldAlert(packet.Absent))

	require.NoError(t, g.SetCooldown(15*time.Second))
	assert.True(t, g.ShouldAlert(packet.Absent))
	assert.ErrorIs(t, g.SetCooldown(-1), gate.ErrInvalidConfig)
	assert.Equal(t, 15*time.Second, g.Cooldown())
}

func TestHistoryCapacity(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{HistorySize: 3}, clk)
	kinds := []string{"A", "B", "C", "D", "E"}
	for _, k := range kinds {
		g.AddEvent(k, nil)
		clk.Advance(time.Second)
	}
	records := g.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[0].Kind)
	assert.Equal(t, "E", records[2].Kind)
}

func TestHistoryMaxAge(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{HistoryMaxAge: time.Minute}, clk)
	g.AddEvent(packet.Sleeping, nil)
	clk.Advance(30 * time.Second)
	g.AddEvent(packet.Absent, nil)
	clk.Advance(45 * time.Second)

	records := g.Records()
	require.Len(t, records, 1)
	assert.Equal(t, packet.Absent, records[0].Kind)
}

func TestClear_KeepsCooldowns(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{Cooldown: time.Minute}, clk)
	g.AddEvent(packet.PhoneDetected, nil)
	g.AddEvent(packet.Sleeping, nil)
	g.AddEvent(packet.Absent, nil)
	require.Equal(t, 3, g.Len())

	g.Clear()
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, gate.NoIncidents, g.Summary())
	assert.False(t, g.ShouldAlert(packet.PhoneDetected))

	g.ResetCooldowns()
	assert.True(t, g.ShouldAlert(packet.PhoneDetected))
}

func TestRecords_AreCopies(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{}, clk)
	data := map[string]any{"confidence": 0.5}
	g.AddEvent(packet.PhoneDetected, data)
	data["confidence"] = 0.9

	records := g.Records()
	records[0].Kind = "MUTATED"
	fresh := g.Records()
	assert.Equal(t, packet.PhoneDetected, fresh[0].Kind)
	assert.Equal(t, 0.5, fresh[0].Data["confidence"])
}

func TestSummary(t *testing.T) {
	clk := newClock()
	g := newGate(t, gate.Config{}, clk)
	assert.Equal(t, gate.NoIncidents, g.Summary())

	g.AddEvent(packet.PhoneDetected, map[string]any{
		"confidence": 0.91,
		"bbox":       map[string]any{"x": float64(1)},
		"label":      "cell phone",
	})
	clk.Advance(2 * time.Minute)
	g.AddEvent(packet.Sleeping, nil)
	clk.Advance(5 * time.Second)

	s := g.Summary()
	lines := []string{
		"Recent incidents (oldest first):",
		"1. PHONE_DETECTED, 2 minutes ago (confidence=0.91, label=cell phone)",
		"2. SLEEPING, 5 seconds ago",
	}
	for _, l := range lines {
		assert.Contains(t, s, l)
	}
	assert.NotContains(t, s, "bbox")
}

func TestSummary_TruncatesOnRuneBoundary(t *testing.T) {
	g := newGate(t, gate.Config{}, newClock())
	label := strings.Repeat("휴대폰을 보고 있는 사용자입니다 ", 4)
	g.AddEvent(packet.PhoneDetected, map[string]any{"label": label})

	s := g.Summary()
	assert.True(t, utf8.ValidString(s))
	want := string([]rune(label)[:40]) + "…"
	assert.Contains(t, s, "label="+want+")")
}

func TestConcurrentAdmit(t *testing.T) {
	g, err := gate.New(gate.Config{Cooldown: time.Hour})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(packet.GazeAway, nil) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, g.Len())
}
