// Package turn holds the C5 concurrency primitive that fans a round of
// assistant tool calls out to the tool gateway and collects their results
// in call order. Grounded on internal/agent/engine.go's dispatchTools (the
// indexed-results-slice-plus-bounded-concurrency shape) and on
// original_source/src/immagent/store.py's _advance (the inner
// execute_one/asyncio.gather step it models), but built on
// golang.org/x/sync/errgroup instead of the teacher's hand-rolled
// chan-struct{}-plus-sync.WaitGroup semaphore, since errgroup.SetLimit is
// already a real dependency this module carries and covers the same bound
// more plainly.
package turn

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/toolgateway"
)

// Gateway is the subset of toolgateway.Manager the dispatcher needs, so
// tests can substitute a stub without spinning up real MCP servers.
type Gateway interface {
	Execute(ctx context.Context, name string, argumentsJSON string) (string, error)
}

var _ Gateway = (*toolgateway.Manager)(nil)

// DispatchToolCalls runs every call in calls concurrently against gw and
// returns one tool-result message per call, in the same order calls was
// given in — regardless of which goroutine finishes first. A call that
// fails (immerr.ToolExecutionError or any other gateway error) does not
// abort its siblings: its content becomes "Error: {message}", the same
// downgrade original_source/src/immagent/store.py's execute_one applies
// around exc.ToolExecutionError.
func DispatchToolCalls(ctx context.Context, gw Gateway, calls []conversation.ToolCall) []conversation.Message {
	results := make([]conversation.Message, len(calls))
	if len(calls) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(calls))

	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			content, err := gw.Execute(gctx, tc.Name, tc.Arguments)
			if err != nil {
				content = "Error: " + errorMessage(tc.Name, err)
			}
			results[i] = conversation.NewToolResultMessage(tc.ID, content)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func errorMessage(toolName string, err error) string {
	var texErr *immerr.ToolExecutionError
	if te, ok := err.(*immerr.ToolExecutionError); ok {
		texErr = te
	}
	if texErr != nil {
		return texErr.Message
	}
	return err.Error()
}
