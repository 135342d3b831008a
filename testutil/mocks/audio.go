package mocks

import (
	"context"
	"sync"
)

// Player records played clips in order. With the TTS fake encoding
// text as audio, Played() reads back the sentence sequence.
type Player struct {
	mu     sync.Mutex
	played []string
}

// NewPlayer creates the fake.
func NewPlayer() *Player {
	return &Player{}
}

// Play implements audio.Player.
func (m *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, string(pcm))
	return nil
}

// Played returns the clips played so far, in order.
func (m *Player) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.played))
	copy(out, m.played)
	return out
}
