// Package agent defines the immutable Agent asset, grounded on the original
// implementation's ImmAgent type.
package agent

import (
	"github.com/google/uuid"

	"github.com/kgk9000/immagent/assets"
	"github.com/kgk9000/immagent/immerr"
)

// Agent is an immutable agent. Every state transition (advancing a turn,
// updating metadata, cloning) produces a brand new Agent with a new ID;
// ParentID links back to the previous state.
type Agent struct {
	assets.Asset
	Name           string
	SystemPromptID uuid.UUID
	ParentID       *uuid.UUID
	ConversationID uuid.UUID
	Model          string
	Metadata       map[string]any
	ModelConfig    map[string]any
}

// AdvanceOptions carries the per-call overrides and safety limits for a
// single turn. Nil model-config fields mean "use the agent's own
// ModelConfig"; zero MaxToolRounds and TimeoutSeconds mean "use the
// package default", while zero MaxRetries means no retries.
type AdvanceOptions struct {
	MaxToolRounds int // default 10 if unset (0); negative is a validation error
	MaxRetries    int // 0 means no retries; negative is a validation error
	TimeoutSeconds float64 // default 120 if unset (0); negative is a
	// validation error, matching the original's "timeout must be
	// positive" check.
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// New constructs a root Agent (ParentID == nil) with a fresh ID.
// Validation of name/systemPrompt/model content is the caller's
// responsibility (Store.CreateAgent performs it before calling New, per
// the original's create_agent).
func New(name string, systemPromptID, conversationID uuid.UUID, model string, metadata, modelConfig map[string]any) Agent {
	return Agent{
		Asset:          assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Name:           name,
		SystemPromptID: systemPromptID,
		ParentID:       nil,
		ConversationID: conversationID,
		Model:          model,
		Metadata:       cloneMap(metadata),
		ModelConfig:    cloneMap(modelConfig),
	}
}

// Evolve returns a new Agent whose ParentID points back at a.ID, with the
// given conversation as its new state. Every other field is copied
// unchanged, matching the original's ImmAgent._evolve.
func (a Agent) Evolve(newConversationID uuid.UUID) Agent {
	parent := a.ID
	return Agent{
		Asset:          assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Name:           a.Name,
		SystemPromptID: a.SystemPromptID,
		ParentID:       &parent,
		ConversationID: newConversationID,
		Model:          a.Model,
		Metadata:       cloneMap(a.Metadata),
		ModelConfig:    cloneMap(a.ModelConfig),
	}
}

// Clone returns a sibling Agent: same ParentID, system prompt, conversation
// and model as a, but a distinct ID. Unlike Evolve, Clone does not make a
// the parent — the clone branches from a's own parent, matching the
// original's _clone_agent (used to branch a conversation in a new
// direction without discarding the original state).
func (a Agent) Clone() Agent {
	return Agent{
		Asset:          assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Name:           a.Name,
		SystemPromptID: a.SystemPromptID,
		ParentID:       a.ParentID,
		ConversationID: a.ConversationID,
		Model:          a.Model,
		Metadata:       cloneMap(a.Metadata),
		ModelConfig:    cloneMap(a.ModelConfig),
	}
}

// WithMetadata returns a new Agent whose ParentID points at a.ID and whose
// Metadata is replaced wholesale, matching the original's _update_metadata.
func (a Agent) WithMetadata(metadata map[string]any) Agent {
	parent := a.ID
	return Agent{
		Asset:          assets.Asset{ID: assets.NewID(), CreatedAt: assets.Now()},
		Name:           a.Name,
		SystemPromptID: a.SystemPromptID,
		ParentID:       &parent,
		ConversationID: a.ConversationID,
		Model:          a.Model,
		Metadata:       cloneMap(metadata),
		ModelConfig:    cloneMap(a.ModelConfig),
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate performs the create_agent-time validation from the original
// Store.create_agent: name, system prompt content, and model must all be
// non-empty.
func Validate(name, systemPrompt, model string) error {
	if trimmedEmpty(name) {
		return immerr.NewValidationError("name", "must not be empty")
	}
	if trimmedEmpty(systemPrompt) {
		return immerr.NewValidationError("system_prompt", "must not be empty")
	}
	if trimmedEmpty(model) {
		return immerr.NewValidationError("model", "must not be empty")
	}
	return nil
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
