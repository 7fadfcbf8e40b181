// Package respond turns a reaction decision into speech: it builds the
// prompt, asks the language model for a line, synthesizes it and writes the
// frames to the session's audio track.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/procrastihator/internal/metrics"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// Collaborator names used in errors and metrics.
const (
	CollaboratorLLM   = "llm"
	CollaboratorTTS   = "tts"
	CollaboratorAudio = "audio"
)

// CollaboratorError wraps a failure of an external service.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ErrEmptyReply is returned when the model answers with blank text.
var ErrEmptyReply = errors.New("empty reply from language model")

// ScoldRequest is a snapshot of everything one scolding needs, so it can run
// after the dispatch loop has moved on.
type ScoldRequest struct {
	Event   string
	Data    map[string]any
	Persona session.Persona
	Memory  string
}

// ExcuseRequest answers something the user said.
type ExcuseRequest struct {
	Transcript string
	Persona    session.Persona
	Memory     string
}

// AudioBinder hands out the outgoing track for a frame format.
type AudioBinder interface {
	BindAudio(ctx context.Context, format voice.Format) (voice.Track, error)
}

// Timeouts bound each collaborator call.
type Timeouts struct {
	LLM time.Duration
	TTS time.Duration
}

// Orchestrator runs responses. It holds no per-request state and is safe for
// concurrent use.
type Orchestrator struct {
	llm      voice.Generator
	tts      voice.Synthesizer
	audio    AudioBinder
	timeouts Timeouts
	logger   *slog.Logger
}

// New wires an orchestrator.
func New(llm voice.Generator, tts voice.Synthesizer, audio AudioBinder, timeouts Timeouts, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{llm: llm, tts: tts, audio: audio, timeouts: timeouts, logger: logger}
}

// Scold generates and speaks a reaction to a detection.
func (o *Orchestrator) Scold(ctx context.Context, req ScoldRequest) error {
	text, err := o.generate(ctx, SystemPrompt(req.Persona), ScoldContext(req.Event, req.Data, req.Memory))
	if err != nil {
		return err
	}
	o.logger.Info("scolding generated", "event", req.Event, "persona", req.Persona.Name, "text", text)
	return o.speak(ctx, text)
}

// Reply generates and speaks an answer to the user's excuse.
func (o *Orchestrator) Reply(ctx context.Context, req ExcuseRequest) error {
	text, err := o.generate(ctx, SystemPrompt(req.Persona), ExcuseContext(req.Transcript, req.Memory))
	if err != nil {
		return err
	}
	o.logger.Info("excuse reply generated", "persona", req.Persona.Name, "text", text)
	return o.speak(ctx, text)
}

// Feedback writes a short persona-voiced review of a session. Nothing is spoken.
func (o *Orchestrator) Feedback(ctx context.Context, p session.Persona, stats session.StatsSnapshot) (string, error) {
	system, user := FeedbackPrompts(p, stats)
	return o.generate(ctx, system, user)
}

func (o *Orchestrator) generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeouts.LLM)
	defer cancel()

	text, err := o.llm.Generate(ctx, system, prompt)
	if err != nil {
		return "", o.fail(CollaboratorLLM, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", o.fail(CollaboratorLLM, ErrEmptyReply)
	}
	return text, nil
}

// speak streams synthesized frames into the session track. The track is bound
// on the first frame, using that frame's format.
func (o *Orchestrator) speak(ctx context.Context, text string) error {
	ctx, cancel := withTimeout(ctx, o.timeouts.TTS)
	defer cancel()

	frames, errs := o.tts.Synthesize(ctx, text)
	var track voice.Track
	count := 0
	for f := range frames {
		if track == nil {
			t, err := o.audio.BindAudio(ctx, f.Format)
			if err != nil {
				return o.fail(CollaboratorAudio, err)
			}
			track = t
		}
		if err := track.WriteFrame(ctx, f); err != nil {
			return o.fail(CollaboratorAudio, err)
		}
		count++
	}
	if err := <-errs; err != nil {
		return o.fail(CollaboratorTTS, err)
	}
	o.logger.Debug("speech sent", "frames", count)
	return nil
}

func (o *Orchestrator) fail(collaborator string, err error) error {
	metrics.CollaboratorErrors.WithLabelValues(collaborator).Inc()
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
