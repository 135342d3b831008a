// Package config loads engine configuration in three layers: built-in
// defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitolab/gdflow/audio"
)

// Config is the full engine configuration.
type Config struct {
	Session    SessionConfig       `yaml:"session"`
	Discussion DiscussionConfig    `yaml:"discussion"`
	Synthesis  SynthesisConfig     `yaml:"synthesis"`
	Scoring    ScoringConfig       `yaml:"scoring"`
	LLM        LLMConfig           `yaml:"llm"`
	TTS        TTSConfig           `yaml:"tts"`
	STT        STTConfig           `yaml:"stt"`
	Capture    audio.CaptureConfig `yaml:"capture"`
	Logging    LoggingConfig       `yaml:"logging"`
	Metrics    MetricsConfig       `yaml:"metrics"`
}

// SessionConfig bounds one discussion.
type SessionConfig struct {
	Theme            string        `yaml:"theme"`
	TimeLimit        time.Duration `yaml:"time_limit"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	FacilitatorName  string        `yaml:"facilitator_name"`
}

// DiscussionConfig tunes turn-taking and reaction chains.
type DiscussionConfig struct {
	MaxChainDepth      int           `yaml:"max_chain_depth"`
	DepthDecayTop      float64       `yaml:"depth_decay_top"`  // applied at depth 0
	DepthDecayDeep     float64       `yaml:"depth_decay_deep"` // applied at depth >= 1
	HumanReentryFactor float64       `yaml:"human_reentry_factor"`
	ListenWindow       time.Duration `yaml:"listen_window"`
	SilenceTimeout     time.Duration `yaml:"silence_timeout"`
	Timing             TimingConfig  `yaml:"timing"`
}

// TimingConfig shapes reply delays from persona activity.
type TimingConfig struct {
	BaseDelay      time.Duration `yaml:"base_delay"`
	ActivityWeight time.Duration `yaml:"activity_weight"`
	MinDelay       time.Duration `yaml:"min_delay"`
	JitterMax      time.Duration `yaml:"jitter_max"`
}

// SynthesisConfig tunes the sentence-level speech pipeline.
type SynthesisConfig struct {
	Workers        int    `yaml:"workers"`
	FallbackPhrase string `yaml:"fallback_phrase"`
}

// ScoringConfig tunes post-session assessment.
type ScoringConfig struct {
	JudgeTimeout time.Duration `yaml:"judge_timeout"`
	WindowTokens int           `yaml:"window_tokens"`
}

// LLMConfig selects and throttles the generation provider.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RequestsSec float64       `yaml:"requests_sec"`
	Burst       int           `yaml:"burst"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Language   string        `yaml:"language"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

// STTConfig configures speech recognition.
type STTConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Language   string        `yaml:"language"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Theme:            "リモートワークを全社導入すべきか",
			TimeLimit:        10 * time.Minute,
			AnnounceInterval: time.Minute,
			FacilitatorName:  "facilitator",
		},
		Discussion: DiscussionConfig{
			MaxChainDepth:      3,
			DepthDecayTop:      0.7,
			DepthDecayDeep:     0.5,
			HumanReentryFactor: 0.3,
			ListenWindow:       time.Second,
			SilenceTimeout:     8 * time.Second,
			Timing: TimingConfig{
				BaseDelay:      3 * time.Second,
				ActivityWeight: 3 * time.Second,
				MinDelay:       300 * time.Millisecond,
				JitterMax:      time.Second,
			},
		},
		Synthesis: SynthesisConfig{
			Workers:        3,
			FallbackPhrase: "すみません、うまく言葉が出ませんでした。",
		},
		Scoring: ScoringConfig{
			JudgeTimeout: 30 * time.Second,
			WindowTokens: 6000,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			RequestsSec: 2,
			Burst:       4,
		},
		TTS: TTSConfig{
			Language:   "ja-JP",
			SampleRate: 16000,
			Timeout:    30 * time.Second,
		},
		STT: STTConfig{
			Language:   "ja-JP",
			SampleRate: 16000,
			Timeout:    30 * time.Second,
		},
		Capture: audio.DefaultCaptureConfig(),
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load builds the configuration. path may be empty to skip the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		if cfg.TTS.APIKey == "" {
			cfg.TTS.APIKey = v
		}
		if cfg.STT.APIKey == "" {
			cfg.STT.APIKey = v
		}
	}
	if v := os.Getenv("GDFLOW_THEME"); v != "" {
		cfg.Session.Theme = v
	}
	if v := os.Getenv("GDFLOW_TIME_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.TimeLimit = d
		}
	}
	if v := os.Getenv("GDFLOW_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("GDFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GDFLOW_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.TimeLimit <= 0 {
		return fmt.Errorf("session.time_limit must be positive")
	}
	if c.Discussion.MaxChainDepth < 1 {
		return fmt.Errorf("discussion.max_chain_depth must be at least 1")
	}
	if c.Discussion.DepthDecayTop < 0 || c.Discussion.DepthDecayTop > 1 {
		return fmt.Errorf("discussion.depth_decay_top must be in [0,1]")
	}
	if c.Discussion.DepthDecayDeep < 0 || c.Discussion.DepthDecayDeep > 1 {
		return fmt.Errorf("discussion.depth_decay_deep must be in [0,1]")
	}
	if c.Discussion.ListenWindow <= 0 {
		return fmt.Errorf("discussion.listen_window must be positive")
	}
	if c.Synthesis.Workers < 1 {
		return fmt.Errorf("synthesis.workers must be at least 1")
	}
	return nil
}
