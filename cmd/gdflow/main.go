// Command gdflow runs one facilitation training session over the
// terminal's audio pipes: raw LINEAR16 microphone PCM on stdin, raw
// playback PCM on stdout, logs on stderr. A typical invocation:
//
//	arecord -f S16_LE -r 16000 -c 1 | gdflow | aplay -f S16_LE -r 16000 -c 1
//
// The assessment report and minutes are written next to the process
// when the session ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hitolab/gdflow"
	"github.com/hitolab/gdflow/audio"
	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/discussion"
	"github.com/hitolab/gdflow/internal/metrics"
	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/llm/gemini"
	"github.com/hitolab/gdflow/score"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/speech"
	"github.com/hitolab/gdflow/synth"
	"github.com/hitolab/gdflow/types"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "gdflow:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to config YAML")
		theme      = flag.String("theme", "", "discussion theme, or \"random\" for one from the built-in pool")
		timeLimit  = flag.Duration("time-limit", 0, "session time limit (overrides config)")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "randomness seed")
		outDir     = flag.String("out", ".", "directory for the report and minutes")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("gdflow", gdflow.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	switch *theme {
	case "":
	case "random":
		cfg.Session.Theme = gdflow.RandomTheme(*seed)
	default:
		cfg.Session.Theme = *theme
	}
	if *timeLimit > 0 {
		cfg.Session.TimeLimit = *timeLimit
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	col := metrics.New(nil)
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	var provider llm.Provider = gemini.New(gemini.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	provider = llm.WithRetry(provider, &llm.RetryPolicy{
		MaxRetries:   cfg.LLM.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, logger)
	provider = llm.WithRateLimit(provider, cfg.LLM.RequestsSec, cfg.LLM.Burst)

	tts := speech.NewGoogleTTS(speech.GoogleTTSConfig{
		APIKey:     cfg.TTS.APIKey,
		BaseURL:    cfg.TTS.BaseURL,
		Language:   cfg.TTS.Language,
		SampleRate: cfg.TTS.SampleRate,
		Timeout:    cfg.TTS.Timeout,
	}, logger)
	stt := speech.NewGoogleSTT(speech.GoogleSTTConfig{
		APIKey:     cfg.STT.APIKey,
		BaseURL:    cfg.STT.BaseURL,
		Language:   cfg.STT.Language,
		SampleRate: cfg.STT.SampleRate,
		Timeout:    cfg.STT.Timeout,
	}, logger)

	roster := session.NewRoster(
		types.NewHuman(cfg.Session.FacilitatorName),
		gdflow.DefaultPersonas(*seed)...,
	)
	events := &logListener{logger: logger}
	sess := session.New(cfg.Session.Theme, roster, cfg.Session.TimeLimit,
		session.WithLogger(logger),
		session.WithListener(events),
	)

	capture := audio.NewCapture(&stdinSource{r: os.Stdin}, cfg.Capture, logger)
	go func() {
		if err := capture.Run(ctx); err != nil {
			logger.Error("capture stopped", zap.Error(err))
		}
	}()

	player := audio.NewWriterPlayer(os.Stdout)
	speaker := synth.New(provider, tts, player, cfg.Synthesis, col, logger)
	scorer := score.New(provider, cfg.Scoring, logger)

	orch := discussion.New(cfg.Discussion, discussion.Deps{
		Session:  sess,
		Provider: provider,
		Speaker:  speaker,
		STT:      stt,
		Voice:    capture,
		Mentions: discussion.NewMentionClassifier(provider, logger),
		Scorer:   scorer,
		Metrics:  col,
		Logger:   logger,
	}, *seed)

	go announceLoop(ctx, sess, cfg.Session.AnnounceInterval)

	logger.Info("session starting",
		zap.String("theme", cfg.Session.Theme),
		zap.Duration("time_limit", cfg.Session.TimeLimit),
		zap.Int64("seed", *seed))
	runErr := orch.Run(ctx)

	// reporting runs on a fresh context so Ctrl-C still yields a report
	reportCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	writeReports(reportCtx, scorer, sess, events.finalScore(), *outDir, logger)

	return runErr
}

func writeReports(ctx context.Context, scorer *score.Scorer, sess *session.Session, sc *types.FacilitationScore, outDir string, logger *zap.Logger) {
	if sc == nil {
		// the session-ended event never fired with a score
		scored := scorer.Score(ctx, sess)
		sc = &scored
	}
	fb := scorer.Feedback(ctx, sess, *sc)
	report := score.RenderReport(sess.Theme, *sc, fb)
	reportPath := filepath.Join(outDir, "report.md")
	if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
		logger.Error("writing report failed", zap.Error(err))
	} else {
		logger.Info("report written", zap.String("path", reportPath), zap.Int("score", sc.Total))
	}

	if minutes, ok, err := scorer.Minutes(ctx, sess); err == nil && ok {
		minutesPath := filepath.Join(outDir, "minutes.md")
		if err := os.WriteFile(minutesPath, []byte(minutes), 0o644); err != nil {
			logger.Error("writing minutes failed", zap.Error(err))
		} else {
			logger.Info("minutes written", zap.String("path", minutesPath))
		}
	} else if !ok {
		logger.Info("no recorder was appointed, skipping minutes")
	}
}

func announceLoop(ctx context.Context, sess *session.Session, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.Clock.Started() {
				sess.AnnounceRemaining()
			}
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout carries audio; all logging goes to stderr
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// stdinSource adapts stdin to the capture loop in 100ms chunks.
type stdinSource struct {
	r io.Reader
}

func (s *stdinSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, 3200)
	n, err := io.ReadFull(s.r, buf)
	if err == io.ErrUnexpectedEOF && n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// logListener mirrors session events into the log and holds on to the
// final score delivered with the session-ended event.
type logListener struct {
	session.NopListener
	logger *zap.Logger

	mu    sync.Mutex
	score *types.FacilitationScore
}

func (l *logListener) finalScore() *types.FacilitationScore {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.score
}

func (l *logListener) OnSpeakerChanged(speakerID string) {
	l.logger.Info("speaker", zap.String("id", speakerID))
}

func (l *logListener) OnRoleChanged(participantID string, role types.Role) {
	l.logger.Info("role assigned", zap.String("participant", participantID), zap.String("role", string(role)))
}

func (l *logListener) OnRemainingTimeChanged(remaining time.Duration) {
	l.logger.Info("time remaining", zap.Duration("remaining", remaining))
}

func (l *logListener) OnSessionEnded(reason session.EndReason, score *types.FacilitationScore) {
	if score == nil {
		l.logger.Info("session over", zap.String("reason", string(reason)))
		return
	}
	l.mu.Lock()
	l.score = score
	l.mu.Unlock()
	l.logger.Info("session over",
		zap.String("reason", string(reason)),
		zap.Int("score", score.Total))
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
