package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gyaneshwarpardhi/procrastihator/internal/filter"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
)

var roomPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// Validate checks the config for:
//   - Negative durations and sizes
//   - Detection kinds that are empty, duplicated or collide with control kinds
//   - Filters that do not compile or name an unknown kind
//   - A room name usable as a NATS subject prefix
//   - A known log level
func Validate(cfg *AgentConfig) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level: unknown level %q", cfg.LogLevel))
	}

	g := cfg.Gate
	if g.Cooldown < 0 {
		errs = append(errs, fmt.Sprintf("gate.cooldown: %v is negative", g.Cooldown))
	}
	if g.HistorySize < 0 {
		errs = append(errs, fmt.Sprintf("gate.history_size: %d is negative", g.HistorySize))
	}
	if g.HistoryMaxAge < 0 {
		errs = append(errs, fmt.Sprintf("gate.history_max_age: %v is negative", g.HistoryMaxAge))
	}
	seen := make(map[string]int)
	for i, kind := range g.DetectionKinds {
		loc := fmt.Sprintf("gate.detection_kinds[%d]", i)
		switch {
		case kind == "":
			errs = append(errs, loc+": kind is empty")
		case packet.IsControl(kind):
			errs = append(errs, fmt.Sprintf("%s: %q is a control kind", loc, kind))
		}
		if prev, ok := seen[kind]; ok {
			errs = append(errs, fmt.Sprintf("%s: duplicate kind %q (first seen at index %d)", loc, kind, prev))
		} else {
			seen[kind] = i
		}
	}

	for kind := range g.Filters {
		if _, ok := seen[kind]; !ok {
			errs = append(errs, fmt.Sprintf("gate.filters.%s: not a detection kind", kind))
		}
	}
	if _, err := filter.CompileSet(g.Filters); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, "gate.filters."+line)
		}
	}

	if n := cfg.Session.MinTranscriptChars; n != nil && *n < 0 {
		errs = append(errs, "session.min_transcript_chars: must not be negative")
	}

	d := cfg.Dispatch
	if d.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("dispatch.queue_depth: %d must be at least 1", d.QueueDepth))
	}
	if d.DedupeSize < 1 {
		errs = append(errs, fmt.Sprintf("dispatch.dedupe_size: %d must be at least 1", d.DedupeSize))
	}
	if d.EventTimeout <= 0 {
		errs = append(errs, "dispatch.event_timeout: must be positive")
	}

	r := cfg.Response
	if r.LLMTimeout <= 0 || r.TTSTimeout <= 0 || r.STTTimeout <= 0 {
		errs = append(errs, "response: llm_timeout, tts_timeout and stt_timeout must be positive")
	}
	if r.MaxTokens < 0 {
		errs = append(errs, "response.max_tokens: must not be negative")
	}
	if t := r.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Sprintf("response.temperature: %v outside [0, 2]", *t))
	}

	t := cfg.Transport
	if !roomPattern.MatchString(t.Room) {
		errs = append(errs, fmt.Sprintf("transport.room: %q is not a valid subject prefix", t.Room))
	}
	if t.PublishRate <= 0 || t.PublishBurst < 1 {
		errs = append(errs, "transport: publish_rate must be positive and publish_burst at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
