// Package llm defines the text-generation contract the engine speaks
// and provider-agnostic decorators (retry, rate limiting) around it.
// Concrete providers live in subpackages.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of provider input.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is a single generation call. System carries the
// persona or judge instructions; Messages carry the conversation
// window, oldest first.
type GenerateRequest struct {
	System      string        `json:"system,omitempty"`
	Messages    []Message     `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// GenerateResponse is the provider's completion.
type GenerateResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Model        string `json:"model,omitempty"`
	Usage        Usage  `json:"usage,omitempty"`
}

// Provider generates text. Implementations must be safe for concurrent
// use; the synthesis pipeline and the orchestrator call them from
// multiple goroutines.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Generate produces a free-form completion.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// GenerateStructured produces a completion constrained to JSON and
	// unmarshals it into out. Implementations tolerate code fences and
	// leading prose around the JSON object.
	GenerateStructured(ctx context.Context, req *GenerateRequest, out any) error
}
