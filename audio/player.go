// Package audio handles raw LINEAR16 PCM on both ends: playing
// synthesized speech and capturing microphone input with a simple
// volume gate.
package audio

import (
	"context"
	"encoding/binary"
	"io"
	"time"
)

// Player plays one PCM clip and returns when playback finishes or the
// context is cancelled. Cancellation mid-clip is how interruptions cut
// a persona off.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// WriterPlayer streams PCM frames to an io.Writer, typically a pipe
// into an external playback process. It paces writes in real time so
// cancellation stops sound promptly instead of after a buffered flush.
type WriterPlayer struct {
	w         io.Writer
	chunkSize int
}

// NewWriterPlayer creates a player over w.
func NewWriterPlayer(w io.Writer) *WriterPlayer {
	return &WriterPlayer{w: w, chunkSize: 3200} // 100ms at 16kHz mono
}

// Play implements Player.
func (p *WriterPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	chunkDur := time.Duration(p.chunkSize/2) * time.Second / time.Duration(sampleRate)
	ticker := time.NewTicker(chunkDur)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += p.chunkSize {
		end := off + p.chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := p.w.Write(pcm[off:end]); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// PeakAmplitude returns the largest absolute sample value in a
// little-endian LINEAR16 buffer. A trailing odd byte is ignored.
func PeakAmplitude(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
