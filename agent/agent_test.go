package agent

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("Bot", "You are helpful.", "anthropic/claude-3-5-haiku-20241022"))

	err := Validate("  ", "You are helpful.", "anthropic/claude-3-5-haiku-20241022")
	require.Error(t, err)

	err = Validate("Bot", "", "anthropic/claude-3-5-haiku-20241022")
	require.Error(t, err)

	err = Validate("Bot", "You are helpful.", "")
	require.Error(t, err)
}

func TestEvolveCreatesNewIdentityLinkedToParent(t *testing.T) {
	root := New("Bot", uuid.New(), uuid.New(), "anthropic/claude-3-5-haiku-20241022", nil, nil)
	assert.Nil(t, root.ParentID)

	next := root.Evolve(uuid.New())
	assert.NotEqual(t, root.ID, next.ID)
	require.NotNil(t, next.ParentID)
	assert.Equal(t, root.ID, *next.ParentID)
	assert.Equal(t, root.Name, next.Name)
	assert.Equal(t, root.Model, next.Model)
	assert.Equal(t, root.SystemPromptID, next.SystemPromptID)
}

func TestCloneIsASiblingNotAChild(t *testing.T) {
	root := New("Bot", uuid.New(), uuid.New(), "anthropic/claude-3-5-haiku-20241022", nil, nil)
	child := root.Evolve(uuid.New())

	clone := child.Clone()
	assert.NotEqual(t, child.ID, clone.ID)
	// The clone shares the same parent as the agent it was cloned from,
	// not the agent itself — it branches alongside it, not beneath it.
	assert.Equal(t, child.ParentID, clone.ParentID)
	assert.Equal(t, child.ConversationID, clone.ConversationID)
}

func TestWithMetadataLinksBackToOriginal(t *testing.T) {
	root := New("Bot", uuid.New(), uuid.New(), "anthropic/claude-3-5-haiku-20241022", nil, nil)
	updated := root.WithMetadata(map[string]any{"key": "value"})

	require.NotNil(t, updated.ParentID)
	assert.Equal(t, root.ID, *updated.ParentID)
	assert.Equal(t, "value", updated.Metadata["key"])
	assert.Empty(t, root.Metadata)
}

func TestCloneMapIsADeepEnoughCopy(t *testing.T) {
	meta := map[string]any{"key": "value"}
	a := New("Bot", uuid.New(), uuid.New(), "anthropic/claude-3-5-haiku-20241022", meta, nil)
	meta["key"] = "mutated"
	assert.Equal(t, "value", a.Metadata["key"])
}
