package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/hitolab/gdflow/speech"
)

// TTSProvider is a fake speech.TTSProvider. The synthesized audio is
// the UTF-8 text itself, so playback assertions can read it back.
// DelayFunc lets tests give each sentence a different latency to prove
// ordering is enforced downstream.
type TTSProvider struct {
	mu        sync.Mutex
	calls     []string
	failTexts map[string]error

	DelayFunc func(text string) time.Duration
}

// NewTTSProvider creates the fake.
func NewTTSProvider() *TTSProvider {
	return &TTSProvider{failTexts: make(map[string]error)}
}

// FailOn makes synthesis of the exact text fail with err.
func (m *TTSProvider) FailOn(text string, err error) *TTSProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTexts[text] = err
	return m
}

func (m *TTSProvider) Name() string { return "mock-tts" }

// Calls returns every synthesized text in call order.
func (m *TTSProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Synthesize implements speech.TTSProvider.
func (m *TTSProvider) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Text)
	err := m.failTexts[req.Text]
	delay := time.Duration(0)
	if m.DelayFunc != nil {
		delay = m.DelayFunc(req.Text)
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return &speech.TTSResponse{
		Provider:   m.Name(),
		Audio:      []byte(req.Text),
		Format:     "LINEAR16",
		SampleRate: 16000,
		CharCount:  len(req.Text),
	}, nil
}

// STTProvider is a fake speech.STTProvider that returns queued
// transcripts in order.
type STTProvider struct {
	mu     sync.Mutex
	script []string
	err    error
}

// NewSTTProvider creates the fake.
func NewSTTProvider(transcripts ...string) *STTProvider {
	return &STTProvider{script: transcripts}
}

// WithError makes every call fail.
func (m *STTProvider) WithError(err error) *STTProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *STTProvider) Name() string { return "mock-stt" }

// Transcribe implements speech.STTProvider.
func (m *STTProvider) Transcribe(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return &speech.STTResponse{Provider: m.Name(), Text: ""}, nil
	}
	text := m.script[0]
	m.script = m.script[1:]
	return &speech.STTResponse{Provider: m.Name(), Text: text, Confidence: 0.9}, nil
}
