package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssistantMessageRequiresContentWhenToolCallsEmpty(t *testing.T) {
	_, err := NewAssistantMessage(nil, nil, nil, nil)
	require.Error(t, err)

	content := ""
	msg, err := NewAssistantMessage(&content, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "assistant", msg.Role)

	msg, err = NewAssistantMessage(nil, []ToolCall{{ID: "call-1", Name: "echo", Arguments: "{}"}}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Content)
	assert.Len(t, msg.ToolCalls, 1)
}
