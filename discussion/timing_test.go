package discussion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hitolab/gdflow/config"
)

func testTimingConfig() config.TimingConfig {
	return config.TimingConfig{
		BaseDelay:      3 * time.Second,
		ActivityWeight: 3 * time.Second,
		MinDelay:       300 * time.Millisecond,
		JitterMax:      time.Second,
	}
}

func TestTimingModel_Bounds(t *testing.T) {
	m := NewTimingModel(testTimingConfig(), 1)
	for i := 0; i < 100; i++ {
		d := m.Delay(0.8)
		assert.GreaterOrEqual(t, d, 600*time.Millisecond)
		assert.LessOrEqual(t, d, 600*time.Millisecond+time.Second)
	}
}

func TestTimingModel_HighActivityClampsToMin(t *testing.T) {
	m := NewTimingModel(testTimingConfig(), 1)
	for i := 0; i < 100; i++ {
		d := m.Delay(1.0)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond+time.Second)
	}
	// out-of-range activity is clamped, not extrapolated
	assert.GreaterOrEqual(t, m.Delay(5.0), 300*time.Millisecond)
}

func TestTimingModel_ActiveSpeaksBeforePassive(t *testing.T) {
	active := NewTimingModel(testTimingConfig(), 1)
	passive := NewTimingModel(testTimingConfig(), 1)
	// worst case for the active persona still beats the passive
	// persona's best case under the default shape
	assert.Less(t, active.Delay(1.0), passive.Delay(0.0))
}

func TestTimingModel_SeedDeterminism(t *testing.T) {
	a := NewTimingModel(testTimingConfig(), 42)
	b := NewTimingModel(testTimingConfig(), 42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Delay(0.5), b.Delay(0.5))
	}
}
