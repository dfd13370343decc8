package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/observability"
	"github.com/kgk9000/immagent/turn"
)

const (
	defaultMaxToolRounds  = 10
	defaultTimeoutSeconds = 120.0
)

// Advance satisfies agent.Store. It runs the full turn algorithm grounded
// on store.py's _advance: load conversation/system prompt/history, append
// the user message, then loop up to opts.MaxToolRounds times calling the
// model and, while it keeps making tool calls and a gateway is attached,
// dispatching them concurrently and feeding the results back in. The
// resulting history becomes a new Conversation and a evolves into a new
// Agent, both cached and saved before returning.
func (s *Store) Advance(ctx context.Context, a *agent.Agent, userInput string, opts agent.AdvanceOptions) (*agent.Agent, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, immerr.NewValidationError("user_input", "must not be empty")
	}

	log := observability.LoggerWithTrace(ctx)
	log.Info().Str("agent_id", a.ID.String()).Str("name", a.Name).Str("model", a.Model).Msg("advancing agent")

	maxToolRounds := opts.MaxToolRounds
	switch {
	case maxToolRounds == 0:
		maxToolRounds = defaultMaxToolRounds
	case maxToolRounds < 0:
		return nil, immerr.NewValidationError("max_tool_rounds", "must be at least 1")
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		return nil, immerr.NewValidationError("max_retries", "must not be negative")
	}

	timeoutSeconds := opts.TimeoutSeconds
	switch {
	case timeoutSeconds == 0:
		timeoutSeconds = defaultTimeoutSeconds
	case timeoutSeconds < 0:
		return nil, immerr.NewValidationError("timeout", "must be positive")
	}

	effectiveConfig := map[string]any{}
	for k, v := range a.ModelConfig {
		effectiveConfig[k] = v
	}
	if opts.Temperature != nil {
		effectiveConfig["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		effectiveConfig["max_tokens"] = *opts.MaxTokens
	}
	if opts.TopP != nil {
		effectiveConfig["top_p"] = *opts.TopP
	}

	conv, err := s.getConversation(ctx, a.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, immerr.NewConversationNotFoundError(a.ConversationID)
	}

	systemPrompt, err := s.getSystemPrompt(ctx, a.SystemPromptID)
	if err != nil {
		return nil, err
	}
	if systemPrompt == nil {
		return nil, immerr.NewSystemPromptNotFoundError(a.SystemPromptID)
	}

	msgs, err := s.getMessages(ctx, conv.MessageIDs)
	if err != nil {
		return nil, err
	}

	userMessage := conversation.NewUserMessage(userInput)
	msgs = append(msgs, userMessage)
	newMessages := []conversation.Message{userMessage}

	provider := s.testProvider
	if provider == nil {
		llmCfg := s.llmConfig
		llmCfg.Retry.MaxRetries = maxRetries
		llmCfg.Retry.PerAttemptTimeout = time.Duration(timeoutSeconds * float64(time.Second))
		built, err := llmclient.Build(a.Model, llmCfg)
		if err != nil {
			return nil, err
		}
		provider = built
	}

	var tools []llmclient.ToolSchema
	if s.gateway != nil {
		if lister, ok := s.gateway.(interface{ AllTools() []llmclient.ToolSchema }); ok {
			tools = lister.AllTools()
		}
	}

	req := llmclient.CompletionRequest{
		System: systemPrompt.Content,
		Model:  a.Model,
		Tools:  tools,
	}
	if t, ok := floatField(effectiveConfig, "temperature"); ok {
		req.Temperature = &t
	}
	if mt, ok := intField(effectiveConfig, "max_tokens"); ok {
		req.MaxTokens = &mt
	}
	if tp, ok := floatField(effectiveConfig, "top_p"); ok {
		req.TopP = &tp
	}

	for round := 0; round < maxToolRounds; round++ {
		req.Messages = msgs
		assistantMessage, _, err := provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, assistantMessage)
		newMessages = append(newMessages, assistantMessage)

		if len(assistantMessage.ToolCalls) == 0 || s.gateway == nil {
			break
		}

		toolResults := turn.DispatchToolCalls(ctx, s.gateway, assistantMessage.ToolCalls)
		msgs = append(msgs, toolResults...)
		newMessages = append(newMessages, toolResults...)
	}

	newConv := conv.WithMessages(messageIDs(newMessages)...)
	newAgent := a.Evolve(newConv.ID)

	for _, m := range newMessages {
		s.messages.put(m.ID, m)
	}
	s.conversations.put(newConv.ID, newConv)
	s.agents.put(newAgent.ID, newAgent)

	if err := s.save(ctx, newAgent); err != nil {
		return nil, err
	}
	agent.Register(&newAgent, s)
	log.Info().Str("old_id", a.ID.String()).Str("new_id", newAgent.ID.String()).Int("new_messages", len(newMessages)).Msg("agent advanced")
	return &newAgent, nil
}

// floatField and intField read a model_config entry that may have arrived
// either as a Go literal (int/float64, set directly by callers) or as a
// float64 (the universal shape json.Unmarshal produces for numbers loaded
// back out of Postgres).
func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func messageIDs(msgs []conversation.Message) []uuid.UUID {
	out := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
