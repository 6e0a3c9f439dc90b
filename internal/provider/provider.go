// Package provider defines the pluggable text-generation backend contract
// and the unified response schema every backend normalizes into.
package provider

import (
	"context"
	"encoding/json"
)

// Message is one conversational turn in the unified response schema.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ReasoningContent carries chain-of-thought output from reasoning
	// models (e.g. deepseek-reasoner) when the upstream returns it.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// ToolCalls is passed through verbatim when the upstream response
	// includes tool invocations.
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// Choice is one generation alternative in the unified response schema.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting for a completed invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the unified schema every provider's native reply is
// normalized into. Callers never see vendor-specific payloads.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Provider is the capability set each text-generation backend exposes.
// Implementations normalize their native responses internally, so Invoke
// always yields the unified schema.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string

	// SupportedModels returns the model names this provider accepts.
	SupportedModels() []string

	// Invoke calls the named model with the given parameters and returns
	// the normalized response. Failures are reported as *provider.Error
	// with a category that distinguishes transient from permanent causes.
	Invoke(ctx context.Context, model string, params map[string]any) (*Response, error)
}
