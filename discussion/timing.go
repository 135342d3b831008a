package discussion

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hitolab/gdflow/config"
)

// TimingModel converts a persona's activity level into a reply delay.
// Active personas jump in almost immediately; passive ones leave a
// gap a human could fill. The delay doubles as the interruption listen
// window, so it never goes below MinDelay.
type TimingModel struct {
	cfg config.TimingConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTimingModel creates a model. The seed fixes the jitter sequence
// for reproducible sessions.
func NewTimingModel(cfg config.TimingConfig, seed int64) *TimingModel {
	return &TimingModel{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Delay returns the wait before a persona with the given activity
// level starts speaking.
func (m *TimingModel) Delay(activity float64) time.Duration {
	if activity < 0 {
		activity = 0
	}
	if activity > 1 {
		activity = 1
	}
	base := m.cfg.BaseDelay - time.Duration(float64(m.cfg.ActivityWeight)*activity)
	if base < m.cfg.MinDelay {
		base = m.cfg.MinDelay
	}
	m.mu.Lock()
	jitter := time.Duration(m.rng.Float64() * float64(m.cfg.JitterMax))
	m.mu.Unlock()
	return base + jitter
}
