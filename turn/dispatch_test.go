package turn

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
)

type stubGateway struct {
	delay   time.Duration
	inFlight *int32
	maxSeen  *int32
	fail     map[string]bool
	delays   map[string]time.Duration
}

func (s *stubGateway) Execute(ctx context.Context, name, argumentsJSON string) (string, error) {
	if s.inFlight != nil {
		n := atomic.AddInt32(s.inFlight, 1)
		defer atomic.AddInt32(s.inFlight, -1)
		for {
			max := atomic.LoadInt32(s.maxSeen)
			if n <= max || atomic.CompareAndSwapInt32(s.maxSeen, max, n) {
				break
			}
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if d := s.delays[name]; d > 0 {
		time.Sleep(d)
	}
	if s.fail[name] {
		return "", immerr.NewToolExecutionError(name, "boom")
	}
	return "ok:" + name, nil
}

func TestDispatchToolCallsPreservesOrderRegardlessOfCompletionOrder(t *testing.T) {
	gw := &stubGateway{delays: map[string]time.Duration{"slow": 30 * time.Millisecond}}
	calls := []conversation.ToolCall{
		{ID: "1", Name: "slow", Arguments: "{}"},
		{ID: "2", Name: "fast", Arguments: "{}"},
	}
	results := DispatchToolCalls(context.Background(), gw, calls)
	require.Len(t, results, 2)
	assert.Equal(t, "1", *results[0].ToolCallID)
	assert.Equal(t, "ok:slow", *results[0].Content)
	assert.Equal(t, "2", *results[1].ToolCallID)
	assert.Equal(t, "ok:fast", *results[1].Content)
}

func TestDispatchToolCallsRunsConcurrently(t *testing.T) {
	var inFlight, maxSeen int32
	gw := &stubGateway{delay: 30 * time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen}
	calls := []conversation.ToolCall{
		{ID: "1", Name: "a", Arguments: "{}"},
		{ID: "2", Name: "b", Arguments: "{}"},
		{ID: "3", Name: "c", Arguments: "{}"},
	}
	start := time.Now()
	DispatchToolCalls(context.Background(), gw, calls)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 90*time.Millisecond, "calls should overlap, not run sequentially")
	assert.Equal(t, int32(3), atomic.LoadInt32(&maxSeen))
}

func TestDispatchToolCallsDowngradesFailureToErrorContent(t *testing.T) {
	gw := &stubGateway{fail: map[string]bool{"broken": true}}
	calls := []conversation.ToolCall{{ID: "1", Name: "broken", Arguments: "{}"}}
	results := DispatchToolCalls(context.Background(), gw, calls)
	require.Len(t, results, 1)
	assert.Equal(t, "Error: boom", *results[0].Content)
}
