package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/metrics"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// HeaderFileName names a recorded clip on voice.in; Whisper infers the
// container from its extension.
const HeaderFileName = "File-Name"

// Sink receives what arrives on the room's inbound subjects.
type Sink interface {
	SubmitRaw(b []byte) error
	SubmitTranscript(ev voice.TranscriptEvent) bool
}

// Listener subscribes a Sink to a room.
type Listener struct {
	sink       Sink
	stt        voice.Transcriber
	sttTimeout time.Duration
	logger     *slog.Logger
	subs       []*nats.Subscription
}

// NewListener wires the handlers. stt may be nil, in which case voice.in is
// not subscribed.
func NewListener(sink Sink, stt voice.Transcriber, sttTimeout time.Duration, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{sink: sink, stt: stt, sttTimeout: sttTimeout, logger: logger}
}

// Start subscribes to conf's detection and voice.in subjects. ctx bounds the
// transcriptions started by incoming clips.
func (l *Listener) Start(ctx context.Context, c *Conn, conf config.TransportConf) error {
	sub, err := c.Subscribe(conf.DetectionSubject(), l.handleDetection)
	if err != nil {
		return err
	}
	l.subs = append(l.subs, sub)
	if l.stt == nil {
		return nil
	}
	sub, err = c.Subscribe(conf.VoiceInSubject(), func(m *nats.Msg) { l.handleVoice(ctx, m) })
	if err != nil {
		l.Stop()
		return err
	}
	l.subs = append(l.subs, sub)
	l.logger.Info("listening", "detection", conf.DetectionSubject(), "voice_in", conf.VoiceInSubject())
	return nil
}

// Stop unsubscribes everything Start registered.
func (l *Listener) Stop() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			l.logger.Warn("unsubscribe", "subject", sub.Subject, "err", err)
		}
	}
	l.subs = nil
}

func (l *Listener) handleDetection(m *nats.Msg) {
	// SubmitRaw logs and counts decode failures itself.
	_ = l.sink.SubmitRaw(m.Data)
}

func (l *Listener) handleVoice(ctx context.Context, m *nats.Msg) {
	if len(m.Data) == 0 {
		return
	}
	clip := voice.Clip{Name: m.Header.Get(HeaderFileName), Audio: bytes.NewReader(m.Data)}
	if clip.Name == "" {
		clip.Name = "utterance.wav"
	}

	if l.sttTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.sttTimeout)
		defer cancel()
	}
	events, errs := l.stt.Transcribe(ctx, clip)
	for ev := range events {
		if !l.sink.SubmitTranscript(ev) {
			l.logger.Warn("transcript dropped", "final", ev.Final)
		}
	}
	if err := <-errs; err != nil {
		metrics.CollaboratorErrors.WithLabelValues("stt").Inc()
		l.logger.Error("transcription failed", "clip", clip.Name, "bytes", len(m.Data), "err", err)
	}
}
