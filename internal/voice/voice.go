// Package voice defines the speech collaborators the agent depends on: a text
// generator, a speech synthesizer, a transcriber and an outgoing audio track.
package voice

import (
	"context"
	"io"
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// BytesPerSecond returns the PCM byte rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Frame is one chunk of synthesized audio.
type Frame struct {
	Format
	Data []byte
}

// Generator produces text from a system prompt and a conversational context.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Synthesizer streams speech for text. The frame channel is closed when
// synthesis ends and the error channel right after it, carrying at most one
// error. Implementations stop sending once ctx is done.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan Frame, <-chan error)
}

// Clip is a recorded utterance to transcribe.
type Clip struct {
	Name  string // file name hint, e.g. "utterance.wav"
	Audio io.Reader
}

// TranscriptEvent is a partial or final transcript.
type TranscriptEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Transcriber streams transcript events for a clip, ending with a Final one.
// Channel semantics match Synthesizer.
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (<-chan TranscriptEvent, <-chan error)
}

// Track is the agent's outgoing audio.
type Track interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// TrackOpener publishes a new track for the given format.
type TrackOpener func(ctx context.Context, f Format) (Track, error)
