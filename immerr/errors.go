// Package immerr defines the error taxonomy shared across every immagent
// package, grounded on the original implementation's exceptions module.
package immerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is the sentinel every not-found error variant wraps, so
// callers can test with a single errors.Is(err, immerr.ErrNotFound) check
// regardless of which asset type was missing.
var ErrNotFound = errors.New("immagent: asset not found")

// ValidationError reports that a caller-supplied value failed validation
// before any asset was constructed.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AssetNotFoundError reports that an asset of a known type could not be
// resolved from cache or the backing store.
type AssetNotFoundError struct {
	AssetType string
	AssetID   uuid.UUID
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.AssetType, e.AssetID)
}

func (e *AssetNotFoundError) Unwrap() error {
	return ErrNotFound
}

func NewConversationNotFoundError(id uuid.UUID) *AssetNotFoundError {
	return &AssetNotFoundError{AssetType: "conversation", AssetID: id}
}

func NewSystemPromptNotFoundError(id uuid.UUID) *AssetNotFoundError {
	return &AssetNotFoundError{AssetType: "system prompt", AssetID: id}
}

func NewAgentNotFoundError(id uuid.UUID) *AssetNotFoundError {
	return &AssetNotFoundError{AssetType: "agent", AssetID: id}
}

// NewMessageNotFoundError reports a missing message during a batch load.
// The distilled spec omitted this variant; it is restored here because
// Store's batch message fetch needs to report exactly which message ID
// could not be resolved.
func NewMessageNotFoundError(id uuid.UUID) *AssetNotFoundError {
	return &AssetNotFoundError{AssetType: "message", AssetID: id}
}

// LLMError wraps a provider/transport failure that survived all retries.
type LLMError struct {
	Err error
}

func NewLLMError(err error) *LLMError {
	return &LLMError{Err: err}
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm call failed: %v", e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// ToolExecutionError reports that a single tool invocation failed. Callers
// in the turn engine catch this and fold it into the tool's result content
// rather than aborting the turn.
type ToolExecutionError struct {
	ToolName string
	Message  string
}

func NewToolExecutionError(toolName, message string) *ToolExecutionError {
	return &ToolExecutionError{ToolName: toolName, Message: message}
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.ToolName, e.Message)
}
