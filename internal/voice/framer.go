package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultFrameDuration matches the 20 ms frames real-time audio tracks expect.
const DefaultFrameDuration = 20 * time.Millisecond

// FrameSize returns the byte length of one frame of duration d, aligned to a
// whole sample across all channels.
func FrameSize(f Format, d time.Duration) int {
	align := f.Channels * 2
	if align <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	n -= n % align
	if n < align {
		n = align
	}
	return n
}

// StreamFrames cuts r into frames of duration d and sends them on out. A short
// trailing frame is sent as is (trimmed to a whole sample). It returns nil at EOF.
func StreamFrames(ctx context.Context, r io.Reader, f Format, d time.Duration, out chan<- Frame) error {
	size := FrameSize(f, d)
	if size == 0 {
		return fmt.Errorf("invalid audio format %+v", f)
	}
	align := f.Channels * 2
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		n -= n % align
		if n > 0 {
			select {
			case out <- Frame{Format: f, Data: buf[:n]}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("read audio: %w", err)
		}
	}
}
