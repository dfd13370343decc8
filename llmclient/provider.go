// Package llmclient defines the provider-agnostic LLM completion contract
// (C2), grounded on internal/llm/provider.go's Provider interface but
// trimmed to the single non-streaming call the turn engine needs.
package llmclient

import (
	"context"

	"github.com/kgk9000/immagent/conversation"
)

// ToolSchema describes one tool the model may call, in the common
// name/description/JSON-schema-parameters shape every provider accepts.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage reports token accounting for a single completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionRequest bundles everything a provider needs to produce the
// next assistant message.
type CompletionRequest struct {
	System      string
	Messages    []conversation.Message
	Tools       []ToolSchema
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Provider is satisfied by each concrete LLM backend (anthropic, openai).
// Complete must not retry internally — retry policy is applied uniformly
// by WithRetry so every provider gets identical backoff behavior.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (conversation.Message, Usage, error)
}
