package audio

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Source yields successive chunks of microphone PCM. Read blocks until
// a chunk is available and returns io.EOF when the device closes.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// Segment is one contiguous stretch of speech cut out by the volume
// gate.
type Segment struct {
	PCM      []byte
	Duration time.Duration
}

// CaptureConfig tunes the volume gate.
type CaptureConfig struct {
	// Threshold is the peak amplitude above which a chunk counts as
	// speech.
	Threshold int `yaml:"threshold"`
	// Hangover is how long the input may stay quiet before an open
	// segment is closed and emitted.
	Hangover time.Duration `yaml:"hangover"`
	// SampleRate of the source PCM, used to compute segment duration.
	SampleRate int `yaml:"sample_rate"`
}

// DefaultCaptureConfig matches conversational speech over a desktop
// microphone.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Threshold:  500,
		Hangover:   800 * time.Millisecond,
		SampleRate: 16000,
	}
}

// Capture runs the volume gate over a Source. It emits an edge-
// triggered signal the moment speech starts (for interruption checks)
// and the full segment once the speaker goes quiet (for recognition).
type Capture struct {
	src    Source
	cfg    CaptureConfig
	clock  func() time.Time
	logger *zap.Logger

	speechStart chan struct{}
	segments    chan Segment
}

// NewCapture creates a capture loop over src. Run must be started for
// the channels to produce anything.
func NewCapture(src Source, cfg CaptureConfig, logger *zap.Logger) *Capture {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 500
	}
	if cfg.Hangover <= 0 {
		cfg.Hangover = 800 * time.Millisecond
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{
		src:         src,
		cfg:         cfg,
		clock:       time.Now,
		logger:      logger.With(zap.String("component", "capture")),
		speechStart: make(chan struct{}, 1),
		segments:    make(chan Segment, 4),
	}
}

// SpeechStarted signals once per quiet-to-loud transition. The channel
// holds at most one pending signal; drain it with DrainStartSignal
// before opening a fresh listen window.
func (c *Capture) SpeechStarted() <-chan struct{} { return c.speechStart }

// Segments yields completed speech segments in order.
func (c *Capture) Segments() <-chan Segment { return c.segments }

// DrainStartSignal discards a stale speech-start signal, if any.
func (c *Capture) DrainStartSignal() {
	select {
	case <-c.speechStart:
	default:
	}
}

// Run reads the source until the context ends or the device closes.
// The segments channel is closed on return.
func (c *Capture) Run(ctx context.Context) error {
	defer close(c.segments)

	var current []byte
	var lastLoud time.Time
	inSpeech := false

	flush := func() {
		if !inSpeech {
			return
		}
		seg := Segment{
			PCM:      current,
			Duration: pcmDuration(len(current), c.cfg.SampleRate),
		}
		c.logger.Debug("segment closed",
			zap.Int("bytes", len(seg.PCM)),
			zap.Duration("duration", seg.Duration))
		select {
		case c.segments <- seg:
		case <-ctx.Done():
		}
		current = nil
		inSpeech = false
	}

	for {
		chunk, err := c.src.Read(ctx)
		if err != nil {
			flush()
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		loud := PeakAmplitude(chunk) >= c.cfg.Threshold
		now := c.clock()

		switch {
		case loud && !inSpeech:
			inSpeech = true
			lastLoud = now
			current = append(current, chunk...)
			select {
			case c.speechStart <- struct{}{}:
			default:
			}
		case loud:
			lastLoud = now
			current = append(current, chunk...)
		case inSpeech:
			current = append(current, chunk...)
			if now.Sub(lastLoud) >= c.cfg.Hangover {
				flush()
			}
		}

		select {
		case <-ctx.Done():
			flush()
			return nil
		default:
		}
	}
}

func pcmDuration(bytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(bytes/2) * time.Second / time.Duration(sampleRate)
}
