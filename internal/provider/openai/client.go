// Package openai implements the speech collaborators on top of the OpenAI API:
// chat completion for text, the speech endpoint for synthesis and Whisper for
// transcription.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// SpeechFormat is what the speech endpoint returns for "pcm" output.
var SpeechFormat = voice.Format{SampleRate: 24000, Channels: 1}

var errNoChoices = errors.New("empty chat response")

// Client serves as voice.Generator, voice.Synthesizer and voice.Transcriber.
type Client struct {
	api  *goopenai.Client
	conf config.ResponseConf
}

var (
	_ voice.Generator   = (*Client)(nil)
	_ voice.Synthesizer = (*Client)(nil)
	_ voice.Transcriber = (*Client)(nil)
)

// New builds a client. An empty baseURL targets api.openai.com.
func New(apiKey, baseURL string, conf config.ResponseConf) *Client {
	cc := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{api: goopenai.NewClientWithConfig(cc), conf: conf}
}

// Generate performs one chat completion with a system and a user message.
func (c *Client) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.conf.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.conf.MaxTokens,
		Temperature: temperature(c.conf.Temperature),
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// temperature maps the configured value onto the request field, which drops
// an exact zero as unset.
func temperature(t *float32) float32 {
	switch {
	case t == nil:
		return 0
	case *t == 0:
		return math.SmallestNonzeroFloat32
	default:
		return *t
	}
}
