package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgk9000/immagent/agent"
	"github.com/kgk9000/immagent/assets"
	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/turn"
)

// stubProvider returns one canned assistant message per Complete call: with
// withTools set, a tool call on the first call and a plain reply afterwards;
// otherwise always the plain reply. It lets tests drive the turn loop
// deterministically without a real LLM.
type stubProvider struct {
	calls     int
	withTools bool
}

func (p *stubProvider) Complete(ctx context.Context, req llmclient.CompletionRequest) (conversation.Message, llmclient.Usage, error) {
	p.calls++
	if p.withTools && p.calls == 1 {
		content := ""
		msg, err := conversation.NewAssistantMessage(&content, []conversation.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: `{"text":"hi"}`},
		}, nil, nil)
		return msg, llmclient.Usage{}, err
	}
	reply := "done"
	msg, err := conversation.NewAssistantMessage(&reply, nil, nil, nil)
	return msg, llmclient.Usage{}, err
}

type stubGateway struct{}

func (g *stubGateway) Execute(ctx context.Context, name, argumentsJSON string) (string, error) {
	return "echoed:" + argumentsJSON, nil
}

// newTestStore builds a memory-backed Store. Tests inject a canned provider
// through the Store's testProvider seam instead of going through
// llmclient.Build. See advanceTurn.
func newTestStore() *Store {
	return NewMemoryStore()
}

// advanceTurn sets the store's provider/gateway seams then advances,
// so tests don't need live provider credentials. Production callers always
// go through Advance -> llmclient.Build.
func advanceTurn(t *testing.T, s *Store, a *agent.Agent, userInput string, provider llmclient.Provider, gw turn.Gateway) *agent.Agent {
	t.Helper()
	s.testProvider = provider
	s.gateway = gw
	updated, err := s.Advance(context.Background(), a, userInput, agent.AdvanceOptions{MaxToolRounds: 4})
	require.NoError(t, err)
	return updated
}

func TestCreateAgentAndAdvanceRoundTrip(t *testing.T) {
	s := newTestStore()
	a, err := s.CreateAgent(context.Background(), "assistant", "You are helpful.", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, a.ID)

	updated := advanceTurn(t, s, a, "hello", &stubProvider{}, nil)
	assert.NotEqual(t, a.ID, updated.ID)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, a.ID, *updated.ParentID)

	msgs, err := s.GetMessages(context.Background(), *updated)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestAdvanceDispatchesToolCallsWhenGatewayAttached(t *testing.T) {
	s := newTestStore()
	a, err := s.CreateAgent(context.Background(), "assistant", "You are helpful.", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	updated := advanceTurn(t, s, a, "use the tool", &stubProvider{withTools: true}, &stubGateway{})

	msgs, err := s.GetMessages(context.Background(), *updated)
	require.NoError(t, err)
	// user, assistant(tool_call), tool result, assistant(final)
	require.Len(t, msgs, 4)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "echoed:"+`{"text":"hi"}`, *msgs[2].Content)
	assert.Equal(t, "done", *msgs[3].Content)
}

func TestAdvanceRejectsEmptyUserInput(t *testing.T) {
	s := newTestStore()
	a, err := s.CreateAgent(context.Background(), "assistant", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	s.testProvider = &stubProvider{}
	_, err = s.Advance(context.Background(), a, "   ", agent.AdvanceOptions{})
	var ve *immerr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestAdvanceRejectsNegativeMaxToolRoundsAndMaxRetries(t *testing.T) {
	s := newTestStore()
	a, err := s.CreateAgent(context.Background(), "assistant", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	s.testProvider = &stubProvider{}

	_, err = s.Advance(context.Background(), a, "hi", agent.AdvanceOptions{MaxToolRounds: -1})
	var ve *immerr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = s.Advance(context.Background(), a, "hi", agent.AdvanceOptions{MaxRetries: -1})
	require.ErrorAs(t, err, &ve)
}

func TestLoadAgentsBatchesAndPreservesOrder(t *testing.T) {
	s := newTestStore()
	first, err := s.CreateAgent(context.Background(), "first", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)
	second, err := s.CreateAgent(context.Background(), "second", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	loaded, err := s.LoadAgents(context.Background(), []uuid.UUID{second.ID, first.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, second.ID, loaded[0].ID)
	assert.Equal(t, first.ID, loaded[1].ID)

	_, err = s.LoadAgents(context.Background(), []uuid.UUID{first.ID, uuid.New()})
	var nfe *immerr.AssetNotFoundError
	require.ErrorAs(t, err, &nfe)
}

func TestLineageOfThreeGenerations(t *testing.T) {
	s := newTestStore()
	root, err := s.CreateAgent(context.Background(), "assistant", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	gen2 := advanceTurn(t, s, root, "turn one", &stubProvider{}, nil)
	gen3 := advanceTurn(t, s, gen2, "turn two", &stubProvider{}, nil)

	lineage, err := s.Lineage(context.Background(), *gen3)
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.Equal(t, root.ID, lineage[0].ID)
	assert.Equal(t, gen2.ID, lineage[1].ID)
	assert.Equal(t, gen3.ID, lineage[2].ID)
}

func TestCloneIsASiblingNotAChild(t *testing.T) {
	s := newTestStore()
	root, err := s.CreateAgent(context.Background(), "assistant", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)
	child := advanceTurn(t, s, root, "hi", &stubProvider{}, nil)

	clone, err := s.Clone(context.Background(), *child)
	require.NoError(t, err)
	assert.NotEqual(t, child.ID, clone.ID)
	require.NotNil(t, clone.ParentID)
	assert.Equal(t, *child.ParentID, *clone.ParentID)
	assert.Equal(t, child.ConversationID, clone.ConversationID)
}

func TestUpdateMetadataMakesAChild(t *testing.T) {
	s := newTestStore()
	root, err := s.CreateAgent(context.Background(), "assistant", "sys", "anthropic/claude-3-5-haiku-20241022", map[string]any{"v": 1}, nil)
	require.NoError(t, err)

	updated, err := s.UpdateMetadata(context.Background(), *root, map[string]any{"v": 2})
	require.NoError(t, err)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, root.ID, *updated.ParentID)
	assert.Equal(t, float64(2), toFloat(updated.Metadata["v"]))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return -1
}

func TestFindByNameIsExactAndListIsSubstring(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateAgent(context.Background(), "support-bot", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)
	_, err = s.CreateAgent(context.Background(), "support-bot-v2", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	exact, err := s.FindByName(context.Background(), "support-bot")
	require.NoError(t, err)
	require.Len(t, exact, 1)

	substr, err := s.ListAgents(context.Background(), "support", 10, 0)
	require.NoError(t, err)
	assert.Len(t, substr, 2)
}

func TestMemoryStoreGCIsANoop(t *testing.T) {
	s := newTestStore()
	result, err := s.GC(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GCResult{}, result)
}

// TestPostgresGCReclaimsOnlyOrphans exercises the real Postgres path: GC
// must reclaim at least one unreferenced system prompt, and the surviving
// agent must still load afterwards. Skips unless
// DATABASE_URL is set, matching internal/auth/store_test.go's pattern.
func TestPostgresGCReclaimsOnlyOrphans(t *testing.T) {
	_ = godotenv.Load("../.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.InitSchema(ctx))

	surviving, err := s.CreateAgent(ctx, "keep-me", "sys", "anthropic/claude-3-5-haiku-20241022", nil, nil)
	require.NoError(t, err)

	orphanSP, err := assets.NewSystemPrompt("orphaned prompt")
	require.NoError(t, err)
	require.NoError(t, insertSystemPrompt(ctx, s.pool, orphanSP))

	result, err := s.GC(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.TextAssetsDeleted, 1)

	reloaded, err := s.LoadAgent(ctx, surviving.ID)
	require.NoError(t, err)
	assert.Equal(t, surviving.ID, reloaded.ID)
}
