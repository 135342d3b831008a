// Package gemini implements the llm.Provider contract over the Gemini
// generateContent REST API. Authentication uses the x-goog-api-key
// header; assistant turns are sent with role "model".
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/types"
)

// Config holds Gemini connection settings.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Provider talks to the Gemini API over plain HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Gemini provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "gemini")),
	}
}

func (p *Provider) Name() string { return "gemini" }

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float32 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return p.generate(ctx, req, "")
}

// GenerateStructured implements llm.Provider. The response MIME type is
// pinned to JSON and the body is unmarshalled after stripping any code
// fences the model wrapped it in anyway.
func (p *Provider) GenerateStructured(ctx context.Context, req *llm.GenerateRequest, out any) error {
	resp, err := p.generate(ctx, req, "application/json")
	if err != nil {
		return err
	}
	raw := ExtractJSON(resp.Text)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return types.NewError(types.ErrMalformedOutput, "structured response is not valid JSON").
			WithCause(err).WithProvider(p.Name())
	}
	return nil
}

func (p *Provider) generate(ctx context.Context, req *llm.GenerateRequest, mimeType string) (*llm.GenerateResponse, error) {
	body := geminiRequest{
		Contents: convertMessages(req.Messages),
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      req.Temperature,
			MaxOutputTokens:  req.MaxTokens,
			ResponseMimeType: mimeType,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "marshal request").WithCause(err).WithProvider(p.Name())
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		code := types.ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, "generateContent call failed").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapStatusError(httpResp.StatusCode, readErrMsg(httpResp.Body), p.Name())
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, types.NewError(types.ErrContentFiltered,
			"prompt blocked: "+resp.PromptFeedback.BlockReason).WithProvider(p.Name())
	}
	if len(resp.Candidates) == 0 {
		return nil, types.NewError(types.ErrMalformedOutput, "no candidates returned").
			WithRetryable(true).WithProvider(p.Name())
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
		return nil, types.NewError(types.ErrContentFiltered,
			"candidate blocked: "+cand.FinishReason).WithProvider(p.Name())
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}

	out := &llm.GenerateResponse{
		Text:         text.String(),
		FinishReason: cand.FinishReason,
		Model:        resp.ModelVersion,
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	p.logger.Debug("generateContent ok",
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", len(out.Text)),
		zap.String("finish_reason", cand.FinishReason))
	return out, nil
}

func convertMessages(msgs []llm.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return contents
}

func readErrMsg(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var e geminiErrorResp
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return string(data)
}

func mapStatusError(status int, msg, provider string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrProviderUnavailable, msg).WithRetryable(true).WithProvider(provider)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true).WithProvider(provider)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).WithProvider(provider)
	}
}

// ExtractJSON pulls the first JSON object or array out of model output,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
