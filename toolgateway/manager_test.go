package toolgateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteUnknownToolReturnsErrorStringNotGoError(t *testing.T) {
	m := NewManager()
	out, err := m.Execute(context.Background(), "nope", "{}")
	require.NoError(t, err)
	assert.Equal(t, "Error: Unknown tool 'nope'", out)
}

func TestSanitizeNameReplacesSeparators(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeName("a b/c"))
	assert.Equal(t, "server_tool", sanitizeName("server:tool"))
}

func TestSanitizeSchemaFillsMissingPropertiesAndItems(t *testing.T) {
	s := map[string]any{"type": "object"}
	sanitizeSchema(s, "")
	assert.Equal(t, map[string]any{}, s["properties"])

	arr := map[string]any{"type": "array"}
	sanitizeSchema(arr, "")
	assert.Equal(t, map[string]any{"type": "string"}, arr["items"])
}

func TestSanitizeSchemaNormalizesRequiredFromAnySlice(t *testing.T) {
	s := map[string]any{
		"type":     "object",
		"required": []any{"a", "b"},
	}
	sanitizeSchema(s, "")
	assert.Equal(t, []string{"a", "b"}, s["required"])
}

func TestCloseOnEmptyManagerIsANoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Close(context.Background()))
	assert.Empty(t, m.AllTools())
}
