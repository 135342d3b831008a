// Package synth turns one generated reply into audible speech, sentence
// by sentence. Synthesis runs ahead of playback on a bounded worker
// pool; playback itself is strictly in order, so a slow sentence in the
// middle never lets a later one jump the queue.
package synth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hitolab/gdflow/audio"
	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/internal/metrics"
	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/speech"
	"github.com/hitolab/gdflow/types"
)

// Request is one speak turn.
type Request struct {
	System      string
	Messages    []llm.Message
	Temperature float32
	Voice       types.VoiceProfile
	// Deadline, when set, is re-checked before each synthesis
	// submission and each playback. Sentences past it are dropped.
	Deadline time.Time
}

// Synthesizer drives generation, synthesis, and playback.
type Synthesizer struct {
	provider llm.Provider
	tts      speech.TTSProvider
	player   audio.Player
	cfg      config.SynthesisConfig
	metrics  *metrics.Collector
	logger   *zap.Logger
	clock    func() time.Time
}

// New creates a synthesizer.
func New(provider llm.Provider, tts speech.TTSProvider, player audio.Player, cfg config.SynthesisConfig, m *metrics.Collector, logger *zap.Logger) *Synthesizer {
	if cfg.Workers < 1 {
		cfg.Workers = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		provider: provider,
		tts:      tts,
		player:   player,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(zap.String("component", "synth")),
		clock:    time.Now,
	}
}

type sentenceResult struct {
	audio    *speech.TTSResponse
	text     string
	fallback bool
	skip     bool
}

// Speak generates a reply and plays it sentence by sentence. It
// returns the text actually spoken, which may be shorter than the
// generation when the deadline cuts playback off. A failed or empty
// generation is retried once with the prompt cut down to the current
// instruction, then degrades to the fallback phrase so a turn is only
// silent when the deadline has already passed.
func (s *Synthesizer) Speak(ctx context.Context, req *Request) (string, error) {
	sentences := s.generateSentences(ctx, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.expired(req.Deadline) {
		return "", nil
	}
	if len(sentences) == 0 {
		if s.cfg.FallbackPhrase == "" {
			return "", nil
		}
		sentences = []string{s.cfg.FallbackPhrase}
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(s.cfg.Workers))
	results := make([]chan sentenceResult, len(sentences))
	for i := range sentences {
		results[i] = make(chan sentenceResult, 1)
		go func(i int, text string) {
			if err := sem.Acquire(workerCtx, 1); err != nil {
				results[i] <- sentenceResult{skip: true}
				return
			}
			defer sem.Release(1)
			if s.expired(req.Deadline) {
				results[i] <- sentenceResult{skip: true}
				return
			}
			results[i] <- s.synthesize(workerCtx, text, req.Voice)
		}(i, sentences[i])
	}

	var spoken strings.Builder
	for i := range sentences {
		var res sentenceResult
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return spoken.String(), ctx.Err()
		}
		if res.skip {
			continue
		}
		if s.expired(req.Deadline) {
			s.logger.Debug("deadline reached, dropping tail",
				zap.Int("played", i),
				zap.Int("total", len(sentences)))
			break
		}
		if err := s.player.Play(ctx, res.audio.Audio, res.audio.SampleRate); err != nil {
			return spoken.String(), err
		}
		s.metrics.ObserveSentence(res.fallback)
		spoken.WriteString(res.text)
	}
	return spoken.String(), nil
}

// generateSentences runs generation and sentence splitting, retrying
// once with only the current instruction when the first attempt errors
// or yields nothing speakable.
func (s *Synthesizer) generateSentences(ctx context.Context, req *Request) []string {
	attempts := [][]llm.Message{req.Messages}
	if len(req.Messages) > 1 {
		attempts = append(attempts, req.Messages[len(req.Messages)-1:])
	}
	for i, msgs := range attempts {
		if ctx.Err() != nil || s.expired(req.Deadline) {
			return nil
		}
		start := s.clock()
		resp, err := s.provider.Generate(ctx, &llm.GenerateRequest{
			System:      req.System,
			Messages:    msgs,
			Temperature: req.Temperature,
		})
		s.metrics.ObserveProviderCall(s.provider.Name(), "generate", s.clock().Sub(start), err)
		if err != nil {
			s.logger.Warn("generation attempt failed",
				zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		if sentences := SplitSentences(CleanupMarkdown(resp.Text)); len(sentences) > 0 {
			return sentences
		}
	}
	return nil
}

// Say synthesizes and plays fixed text with no generation step, for
// introductions and announcements. The text is played whole even
// without terminal punctuation.
func (s *Synthesizer) Say(ctx context.Context, text string, voice types.VoiceProfile) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	res := s.synthesize(ctx, text, voice)
	if res.skip {
		return types.NewError(types.ErrProviderUnavailable, "synthesis failed for fixed text")
	}
	if err := s.player.Play(ctx, res.audio.Audio, res.audio.SampleRate); err != nil {
		return err
	}
	s.metrics.ObserveSentence(res.fallback)
	return nil
}

var simplifyRe = regexp.MustCompile(`[「」『』()（）\[\]{}"'~〜・…]`)

// synthesize tries the sentence as-is, once more with decoration
// stripped, then the fallback phrase. A sentence that fails all three
// is skipped so one bad sentence never kills the turn.
func (s *Synthesizer) synthesize(ctx context.Context, text string, voice types.VoiceProfile) sentenceResult {
	if audio, err := s.tryTTS(ctx, text, voice); err == nil {
		return sentenceResult{audio: audio, text: text}
	}
	simplified := strings.TrimSpace(simplifyRe.ReplaceAllString(text, ""))
	if simplified != "" && simplified != text {
		if audio, err := s.tryTTS(ctx, simplified, voice); err == nil {
			return sentenceResult{audio: audio, text: simplified}
		}
	}
	if s.cfg.FallbackPhrase != "" {
		if audio, err := s.tryTTS(ctx, s.cfg.FallbackPhrase, voice); err == nil {
			s.logger.Warn("sentence replaced by fallback phrase", zap.String("text", text))
			return sentenceResult{audio: audio, text: s.cfg.FallbackPhrase, fallback: true}
		}
	}
	s.logger.Warn("sentence dropped, synthesis failed", zap.String("text", text))
	return sentenceResult{skip: true}
}

func (s *Synthesizer) tryTTS(ctx context.Context, text string, voice types.VoiceProfile) (*speech.TTSResponse, error) {
	start := s.clock()
	resp, err := s.tts.Synthesize(ctx, &speech.TTSRequest{Text: text, Voice: voice})
	s.metrics.ObserveProviderCall(s.tts.Name(), "synthesize", s.clock().Sub(start), err)
	return resp, err
}

func (s *Synthesizer) expired(deadline time.Time) bool {
	return !deadline.IsZero() && s.clock().After(deadline)
}
