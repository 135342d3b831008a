package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hitolab/gdflow/types"
)

// GoogleSTTConfig holds Cloud Speech-to-Text settings.
type GoogleSTTConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Language   string        `yaml:"language"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GoogleSTT implements STTProvider over the Cloud Speech-to-Text v1
// recognize endpoint. Segments are short (one facilitator utterance),
// so synchronous recognition is enough.
type GoogleSTT struct {
	cfg    GoogleSTTConfig
	client *http.Client
	logger *zap.Logger
}

// NewGoogleSTT creates the provider.
func NewGoogleSTT(cfg GoogleSTTConfig, logger *zap.Logger) *GoogleSTT {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://speech.googleapis.com"
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
	return &GoogleSTT{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "google_stt")),
	}
}

func (g *GoogleSTT) Name() string { return "google-stt" }

// Transcribe implements STTProvider.
func (g *GoogleSTT) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if len(req.Audio) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "empty audio").WithProvider(g.Name())
	}
	lang := req.Language
	if lang == "" {
		lang = g.cfg.Language
	}
	rate := req.SampleRate
	if rate == 0 {
		rate = g.cfg.SampleRate
	}

	body := map[string]any{
		"config": map[string]any{
			"encoding":        "LINEAR16",
			"sampleRateHertz": rate,
			"languageCode":    lang,
		},
		"audio": map[string]any{
			"content": base64.StdEncoding.EncodeToString(req.Audio),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "marshal request").WithCause(err).WithProvider(g.Name())
	}

	endpoint := fmt.Sprintf("%s/v1/speech:recognize?key=%s", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err).WithProvider(g.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "recognize call failed").
			WithCause(err).WithRetryable(true).WithProvider(g.Name())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapHTTPError(httpResp.StatusCode, httpResp.Body, g.Name())
	}

	var out struct {
		Results []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(g.Name())
	}

	var text strings.Builder
	var confidence float64
	for _, r := range out.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		text.WriteString(r.Alternatives[0].Transcript)
		if r.Alternatives[0].Confidence > confidence {
			confidence = r.Alternatives[0].Confidence
		}
	}
	g.logger.Debug("transcribed",
		zap.Int("audio_bytes", len(req.Audio)),
		zap.Int("chars", text.Len()),
		zap.Float64("confidence", confidence))
	return &STTResponse{
		Provider:   g.Name(),
		Text:       strings.TrimSpace(text.String()),
		Confidence: confidence,
	}, nil
}
