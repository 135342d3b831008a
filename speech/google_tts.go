package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hitolab/gdflow/types"
)

// GoogleTTSConfig holds Cloud Text-to-Speech settings.
type GoogleTTSConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Language   string        `yaml:"language"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GoogleTTS implements TTSProvider over the Cloud Text-to-Speech v1
// REST API, returning LINEAR16 PCM so playback needs no decoding.
type GoogleTTS struct {
	cfg    GoogleTTSConfig
	client *http.Client
	logger *zap.Logger
}

// NewGoogleTTS creates the provider.
func NewGoogleTTS(cfg GoogleTTSConfig, logger *zap.Logger) *GoogleTTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://texttospeech.googleapis.com"
	}
	if cfg.Language == "" {
		cfg.Language = "ja-JP"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleTTS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "google_tts")),
	}
}

func (g *GoogleTTS) Name() string { return "google-tts" }

type googleSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
		Pitch           float64 `json:"pitch,omitempty"`
		SpeakingRate    float64 `json:"speakingRate,omitempty"`
	} `json:"audioConfig"`
}

// Synthesize implements TTSProvider.
func (g *GoogleTTS) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty text").WithProvider(g.Name())
	}
	lang := req.Language
	if lang == "" {
		lang = g.cfg.Language
	}

	var body googleSynthesizeRequest
	body.Input.Text = req.Text
	body.Voice.LanguageCode = lang
	body.Voice.Name = req.Voice.Name
	body.AudioConfig.AudioEncoding = "LINEAR16"
	body.AudioConfig.SampleRateHertz = g.cfg.SampleRate
	body.AudioConfig.Pitch = req.Voice.Pitch
	body.AudioConfig.SpeakingRate = req.Voice.Rate

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "marshal request").WithCause(err).WithProvider(g.Name())
	}

	endpoint := fmt.Sprintf("%s/v1/text:synthesize?key=%s", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err).WithProvider(g.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "synthesize call failed").
			WithCause(err).WithRetryable(true).WithProvider(g.Name())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapHTTPError(httpResp.StatusCode, httpResp.Body, g.Name())
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(g.Name())
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "decode audio content").
			WithCause(err).WithProvider(g.Name())
	}
	audio = stripWAVHeader(audio)

	latency := time.Since(start)
	g.logger.Debug("synthesized",
		zap.Int("chars", len(req.Text)),
		zap.Int("bytes", len(audio)),
		zap.Duration("latency", latency))
	return &TTSResponse{
		Provider:   g.Name(),
		Audio:      audio,
		Format:     "LINEAR16",
		SampleRate: g.cfg.SampleRate,
		CharCount:  len(req.Text),
		Latency:    latency,
	}, nil
}

// stripWAVHeader drops the 44-byte RIFF header the API prepends to
// LINEAR16 output, leaving raw PCM frames.
func stripWAVHeader(audio []byte) []byte {
	if len(audio) > 44 && bytes.HasPrefix(audio, []byte("RIFF")) {
		return audio[44:]
	}
	return audio
}

func mapHTTPError(status int, body io.Reader, provider string) error {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(data)
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrProviderUnavailable, msg).WithRetryable(true).WithProvider(provider)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).WithProvider(provider)
	}
}
