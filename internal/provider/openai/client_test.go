package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/provider/openai"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

func responseConf() config.ResponseConf {
	cfg := &config.AgentConfig{}
	config.ApplyDefaults(cfg)
	return cfg.Response
}

func newClient(t *testing.T, h http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return openai.New("sk-test", srv.URL+"/v1", responseConf())
}

func TestGenerate(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Phone down. Now."},"finish_reason":"stop"}]}`)
	})

	text, err := c.Generate(context.Background(), "You are Coach.", "[Current situation]")
	require.NoError(t, err)
	assert.Equal(t, "Phone down. Now.", text)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 200, got["max_tokens"])
	assert.InDelta(t, 0.9, got["temperature"], 1e-6)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "You are Coach.", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestGenerate_ZeroTemperatureIsSent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	conf := responseConf()
	zero := float32(0)
	conf.Temperature = &zero
	_, err := openai.New("sk-test", srv.URL+"/v1", conf).Generate(context.Background(), "s", "u")
	require.NoError(t, err)

	temp, ok := got["temperature"].(float64)
	require.True(t, ok, "temperature must be present in the request")
	assert.Less(t, temp, 1e-30)
}

func TestGenerate_NoChoices(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","choices":[]}`)
	})
	_, err := c.Generate(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestGenerate_APIError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	_, err := c.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestSynthesize_FramesPCM(t *testing.T) {
	// 50 ms of audio: two full 20 ms frames and a 10 ms tail.
	pcm := bytes.Repeat([]byte{0x01, 0x00}, 24000/20)
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(pcm)
	})

	frames, errs := c.Synthesize(context.Background(), "Wake up.")
	var sizes []int
	for f := range frames {
		assert.Equal(t, openai.SpeechFormat, f.Format)
		sizes = append(sizes, len(f.Data))
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []int{960, 960, 480}, sizes)
	assert.Equal(t, "pcm", got["response_format"])
	assert.Equal(t, "onyx", got["voice"])
	assert.Equal(t, "Wake up.", got["input"])
}

func TestSynthesize_Error(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice"}}`)
	})
	frames, errs := c.Synthesize(context.Background(), "x")
	for range frames {
		t.Fatal("no frames expected")
	}
	assert.Error(t, <-errs)
}

func TestSynthesize_StopsOnCancel(t *testing.T) {
	pcm := bytes.Repeat([]byte{0, 0}, 24000)
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pcm)
	})
	ctx, cancel := context.WithCancel(context.Background())
	frames, errs := c.Synthesize(ctx, "long")
	<-frames
	cancel()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("synthesis did not stop")
	}
}

func TestTranscribe(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "clip.wav", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"I was reading the docs"}`)
	})

	events, errs := c.Transcribe(context.Background(), voice.Clip{Name: "clip.wav", Audio: strings.NewReader("RIFF")})
	var got []voice.TranscriptEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []voice.TranscriptEvent{{Text: "I was reading the docs", Final: true}}, got)
}

func TestTranscribe_NoAudio(t *testing.T) {
	c := openai.New("sk-test", "http://127.0.0.1:1/v1", responseConf())
	events, errs := c.Transcribe(context.Background(), voice.Clip{})
	for range events {
		t.Fatal("no events expected")
	}
	assert.ErrorContains(t, <-errs, "no audio")
}
