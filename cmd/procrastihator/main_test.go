package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseData(t *testing.T) {
	data, err := parseData([]string{"confidence=0.91", "label=cell phone", "eyes_closed=true", "note=a=b", "n=NaN"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"confidence":  0.91,
		"label":       "cell phone",
		"eyes_closed": true,
		"note":        "a=b",
		"n":           "NaN",
	}, data)

	_, err = parseData([]string{"nokey"})
	assert.Error(t, err)
	_, err = parseData([]string{"=1"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = parseLevel("chatty")
	assert.Error(t, err)
}

func TestClientConfig(t *testing.T) {
	cfg, err := clientConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "procrastihator.detection", cfg.Transport.DetectionSubject())

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v1\ntransport:\n  room: desk-7\n"), 0o644))
	cfg, err = clientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "desk-7.voice.out", cfg.Transport.VoiceOutSubject())

	require.NoError(t, os.WriteFile(path, []byte("version: v1\ntransport:\n  room: \"bad room\"\n"), 0o644))
	_, err = clientConfig(path)
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["agent"])
	assert.True(t, names["send"])
	assert.True(t, names["listen"])

	send, _, err := root.Find([]string{"send", "persona"})
	require.NoError(t, err)
	assert.Equal(t, "persona", send.Name())
}

func TestAudioTally(t *testing.T) {
	var out, pcm bytes.Buffer
	tally := &audioTally{out: &out, sink: &pcm}

	for i := 0; i < 3; i++ {
		msg := nats.NewMsg("room.voice.out")
		msg.Header.Set("Sample-Rate", "24000")
		msg.Header.Set("Channels", "1")
		msg.Data = make([]byte, 960)
		tally.handle(msg)
	}
	tally.handle(nats.NewMsg("room.voice.out"))
	tally.flush()

	assert.Equal(t, 2880, pcm.Len())
	assert.Contains(t, out.String(), "bad frame")
	assert.Contains(t, out.String(), "utterance: 3 frames, 2.9 kB, 60ms of audio at 24000 Hz")
}

func TestOpenPCM_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.pcm")
	for _, chunk := range []string{"ab", "cd"} {
		f, err := openPCM(path)
		require.NoError(t, err)
		_, err = f.WriteString(chunk)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b))
}
