// Package conversation holds the Message, ToolCall, and Conversation
// asset types, grounded on the original implementation's messages module.
package conversation

import (
	"github.com/google/uuid"

	"github.com/kgk9000/immagent/assets"
	"github.com/kgk9000/immagent/immerr"
)

// ToolCall is a tool invocation requested by the assistant. It is never an
// asset on its own; it only ever appears embedded in a Message.
type ToolCall struct {
	ID        string // tool call ID assigned by the LLM provider
	Name      string
	Arguments string // raw JSON arguments, passed through unparsed
}

// Message is an immutable turn in a conversation: from the user, the
// assistant, or a tool result.
type Message struct {
	assets.Asset
	Role         string // "user" | "assistant" | "tool"
	Content      *string
	ToolCalls    []ToolCall
	ToolCallID   *string // set on tool-role messages, references the ToolCall.ID
	InputTokens  *int
	OutputTokens *int
}

func strPtr(s string) *string { return &s }

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return Message{
		Asset:   assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Role:    "user",
		Content: strPtr(content),
	}
}

// NewAssistantMessage builds an assistant-role message, optionally carrying
// tool calls and token usage reported by the provider. Per spec.md §3's
// assistant-message invariant, content must be non-null whenever toolCalls
// is empty.
func NewAssistantMessage(content *string, toolCalls []ToolCall, inputTokens, outputTokens *int) (Message, error) {
	if len(toolCalls) == 0 && content == nil {
		return Message{}, immerr.NewValidationError("content", "must be non-null when tool_calls is empty")
	}
	return Message{
		Asset:        assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Role:         "assistant",
		Content:      content,
		ToolCalls:    toolCalls,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// NewToolResultMessage builds a tool-role message carrying the result of a
// single tool call.
func NewToolResultMessage(toolCallID, content string) Message {
	return Message{
		Asset:      assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Role:       "tool",
		Content:    strPtr(content),
		ToolCallID: &toolCallID,
	}
}

// Conversation is an immutable, ordered list of message IDs. Appending
// messages always produces a new Conversation with a new ID.
type Conversation struct {
	assets.Asset
	MessageIDs []uuid.UUID
}

// NewConversation creates a conversation, optionally seeded with existing
// message IDs (Store.CreateAgent passes none, so new conversations start
// empty).
func NewConversation(messageIDs ...uuid.UUID) Conversation {
	return Conversation{
		Asset:      assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		MessageIDs: messageIDs,
	}
}

// WithMessages returns a new Conversation with newIDs appended to the
// existing message order.
func (c Conversation) WithMessages(newIDs ...uuid.UUID) Conversation {
	merged := make([]uuid.UUID, 0, len(c.MessageIDs)+len(newIDs))
	merged = append(merged, c.MessageIDs...)
	merged = append(merged, newIDs...)
	return Conversation{
		Asset:      assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		MessageIDs: merged,
	}
}
