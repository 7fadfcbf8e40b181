package gate

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// NoIncidents is the summary of an empty history.
const NoIncidents = "No prior incidents in this session."

const (
	maxSummaryFields = 4
	maxFieldLen      = 40
)

// Summary renders the retained history as a compact digest for prompts:
//
//	Recent incidents (oldest first):
//	1. PHONE_DETECTED, 2 minutes ago (confidence=0.91)
//	2. SLEEPING, 5 seconds ago
func (g *Gate) Summary() string {
	g.mu.Lock()
	now := g.now()
	g.evict(now)
	records := make([]Record, len(g.history))
	copy(records, g.history)
	g.mu.Unlock()

	if len(records) == 0 {
		return NoIncidents
	}

	var b strings.Builder
	b.WriteString("Recent incidents (oldest first):")
	for i, r := range records {
		fmt.Fprintf(&b, "\n%d. %s, %s", i+1, r.Kind, humanize.RelTime(r.ObservedAt, now, "ago", "from now"))
		if fields := notableFields(r.Data); fields != "" {
			fmt.Fprintf(&b, " (%s)", fields)
		}
	}
	return b.String()
}

// notableFields keeps scalar values only, sorted by key.
func notableFields(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k, v := range data {
		switch v.(type) {
		case string, bool, float64, float32, int, int64:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > maxSummaryFields {
		keys = keys[:maxSummaryFields]
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(data[k])
		if f, ok := data[k].(float64); ok {
			v = humanize.Ftoa(f)
		}
		v = truncate(v, maxFieldLen)
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ", ")
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
