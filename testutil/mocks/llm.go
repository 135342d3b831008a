// Package mocks provides scripted fakes for the provider contracts.
// They are deterministic and safe for concurrent use so orchestration
// tests can assert ordering without sleeping.
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/types"
)

// LLMProvider is a scripted llm.Provider. Responses are served in
// order; when the script runs out, DefaultText is returned. A GenFunc
// overrides the script entirely.
type LLMProvider struct {
	mu          sync.Mutex
	script      []string
	errs        []error
	calls       []*llm.GenerateRequest
	DefaultText string

	// GenFunc, when set, computes the response per call.
	GenFunc func(req *llm.GenerateRequest) (string, error)
}

// NewLLMProvider creates a fake with an empty script.
func NewLLMProvider() *LLMProvider {
	return &LLMProvider{DefaultText: "なるほど、そうですね。"}
}

// WithResponses queues scripted response texts.
func (m *LLMProvider) WithResponses(texts ...string) *LLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, texts...)
	return m
}

// WithError queues an error to return before any remaining responses.
func (m *LLMProvider) WithError(err error) *LLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

func (m *LLMProvider) Name() string { return "mock-llm" }

// Calls returns every request seen so far.
func (m *LLMProvider) Calls() []*llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.GenerateRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate and GenerateStructured
// calls seen.
func (m *LLMProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *LLMProvider) next(req *llm.GenerateRequest) (string, error) {
	if m.GenFunc != nil {
		m.mu.Lock()
		m.calls = append(m.calls, req)
		m.mu.Unlock()
		return m.GenFunc(req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	if len(m.script) > 0 {
		text := m.script[0]
		m.script = m.script[1:]
		return text, nil
	}
	return m.DefaultText, nil
}

// Generate implements llm.Provider.
func (m *LLMProvider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := m.next(req)
	if err != nil {
		return nil, err
	}
	return &llm.GenerateResponse{Text: text, FinishReason: "STOP"}, nil
}

// GenerateStructured implements llm.Provider. Scripted texts must be
// valid JSON for the target type.
func (m *LLMProvider) GenerateStructured(ctx context.Context, req *llm.GenerateRequest, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text, err := m.next(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return types.NewError(types.ErrMalformedOutput, "scripted response is not valid JSON").WithCause(err)
	}
	return nil
}
