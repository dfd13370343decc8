// Package assets defines the base immutable value shared by every asset in
// the system, plus the SystemPrompt asset.
package assets

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgk9000/immagent/immerr"
)

// Asset is embedded by every immutable value in the system. Assets are
// never mutated in place: any change produces a new value with a new ID.
type Asset struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// NewID generates a new random (v4) asset identifier.
func NewID() uuid.UUID {
	return uuid.New()
}

// Now returns the current time in UTC, the timestamp basis for every asset.
func Now() time.Time {
	return time.Now().UTC()
}

// SystemPrompt is an immutable system prompt for an agent.
type SystemPrompt struct {
	Asset
	Content string
}

// NewSystemPrompt validates content and returns a new SystemPrompt with a
// freshly generated ID and timestamp.
func NewSystemPrompt(content string) (SystemPrompt, error) {
	if strings.TrimSpace(content) == "" {
		return SystemPrompt{}, immerr.NewValidationError("system_prompt", "must not be empty")
	}
	return SystemPrompt{
		Asset:   Asset{ID: NewID(), CreatedAt: Now()},
		Content: content,
	}, nil
}
