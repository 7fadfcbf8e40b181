package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// Synthesize requests raw PCM for text and streams it as 20 ms frames.
func (c *Client) Synthesize(ctx context.Context, text string) (<-chan voice.Frame, <-chan error) {
	out := make(chan voice.Frame)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		err := c.synthesize(ctx, text, out)
		close(out)
		if err != nil {
			errs <- err
		}
	}()
	return out, errs
}

func (c *Client) synthesize(ctx context.Context, text string, out chan<- voice.Frame) error {
	resp, err := c.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.conf.TTSModel),
		Input:          text,
		Voice:          goopenai.SpeechVoice(c.conf.TTSVoice),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()
	return voice.StreamFrames(ctx, resp, SpeechFormat, voice.DefaultFrameDuration, out)
}

// Transcribe sends one recorded clip to Whisper. The API is not streaming, so
// a single final event is emitted.
func (c *Client) Transcribe(ctx context.Context, clip voice.Clip) (<-chan voice.TranscriptEvent, <-chan error) {
	out := make(chan voice.TranscriptEvent, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		text, err := c.transcribe(ctx, clip)
		if err == nil {
			out <- voice.TranscriptEvent{Text: text, Final: true}
		}
		close(out)
		if err != nil {
			errs <- err
		}
	}()
	return out, errs
}

func (c *Client) transcribe(ctx context.Context, clip voice.Clip) (string, error) {
	name := clip.Name
	if name == "" {
		name = "utterance.wav"
	}
	if clip.Audio == nil {
		return "", fmt.Errorf("transcribe %s: no audio", name)
	}
	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.conf.STTModel,
		FilePath: name,
		Reader:   clip.Audio,
		Language: c.conf.STTLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", name, err)
	}
	return resp.Text, nil
}
