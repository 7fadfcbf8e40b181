package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/transport"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// utteranceGap separates two spoken responses in the listen output.
const utteranceGap = 500 * time.Millisecond

func newListenCmd(root *rootFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print the agent's outgoing audio frames; optionally save them as raw PCM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := clientConfig(root.configPath)
			if err != nil {
				return err
			}
			creds, err := config.LoadCredentials(root.envFile)
			if err != nil {
				return err
			}
			conn, err := transport.Connect(creds.NATSURL, creds.NATSToken, cfg.Transport, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			var sink io.Writer = io.Discard
			if outPath != "" {
				f, err := openPCM(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				sink = f
			}

			tally := &audioTally{out: cmd.OutOrStdout(), sink: sink}
			if _, err := conn.Subscribe(cfg.Transport.VoiceOutSubject(), tally.handle); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", cfg.Transport.VoiceOutSubject())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			tally.flush()
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "append received PCM to this file")
	return cmd
}

// audioTally groups frames into utterances separated by silence on the wire.
type audioTally struct {
	out  io.Writer
	sink io.Writer

	mu      sync.Mutex
	format  voice.Format
	frames  int
	bytes   int
	started time.Time
	last    time.Time
}

func (a *audioTally) handle(m *nats.Msg) {
	frame, err := transport.FrameFromMsg(m)
	if err != nil {
		fmt.Fprintf(a.out, "bad frame: %v\n", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	if a.frames > 0 && now.Sub(a.last) > utteranceGap {
		a.report()
	}
	if a.frames == 0 {
		a.started = now
		a.format = frame.Format
	}
	a.frames++
	a.bytes += len(frame.Data)
	a.last = now
	_, _ = a.sink.Write(frame.Data)
}

func (a *audioTally) flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames > 0 {
		a.report()
	}
}

func (a *audioTally) report() {
	audio := time.Duration(0)
	if bps := a.format.BytesPerSecond(); bps > 0 {
		audio = time.Duration(a.bytes) * time.Second / time.Duration(bps)
	}
	fmt.Fprintf(a.out, "utterance: %d frames, %s, %s of audio at %d Hz, received %s\n",
		a.frames, humanize.Bytes(uint64(a.bytes)), audio.Round(10*time.Millisecond), a.format.SampleRate, humanize.Time(a.started))
	a.frames, a.bytes = 0, 0
}

// openPCM opens path for appending, creating it if needed.
func openPCM(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}
