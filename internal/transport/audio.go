package transport

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// Audio frame headers.
const (
	HeaderSampleRate = "Sample-Rate"
	HeaderChannels   = "Channels"
)

// AudioTrack publishes PCM frames on the room's voice.out subject.
type AudioTrack struct {
	pub     MsgPublisher
	subject string
	format  voice.Format
}

// OpenTrack returns a voice.TrackOpener that publishes on subject.
func OpenTrack(pub MsgPublisher, subject string) voice.TrackOpener {
	return func(_ context.Context, f voice.Format) (voice.Track, error) {
		if f.SampleRate <= 0 || f.Channels <= 0 {
			return nil, fmt.Errorf("invalid audio format %+v", f)
		}
		return &AudioTrack{pub: pub, subject: subject, format: f}, nil
	}
}

// WriteFrame publishes one frame. The headers carry the frame's own format.
func (t *AudioTrack) WriteFrame(ctx context.Context, f voice.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(t.subject)
	msg.Header.Set(HeaderSampleRate, strconv.Itoa(f.SampleRate))
	msg.Header.Set(HeaderChannels, strconv.Itoa(f.Channels))
	msg.Data = f.Data
	return t.pub.PublishMsg(msg)
}

// FrameFromMsg reads a frame published by an AudioTrack.
func FrameFromMsg(m *nats.Msg) (voice.Frame, error) {
	rate, err := strconv.Atoi(m.Header.Get(HeaderSampleRate))
	if err != nil {
		return voice.Frame{}, fmt.Errorf("frame %s header: %w", HeaderSampleRate, err)
	}
	channels, err := strconv.Atoi(m.Header.Get(HeaderChannels))
	if err != nil {
		return voice.Frame{}, fmt.Errorf("frame %s header: %w", HeaderChannels, err)
	}
	return voice.Frame{Format: voice.Format{SampleRate: rate, Channels: channels}, Data: m.Data}, nil
}
