// Package toolgateway is the C3 tool gateway: it launches MCP servers over
// stdio, discovers their tools, and dispatches calls to them. Grounded on
// internal/mcpclient/mcpclient.go for the Go-side session/transport
// handling, and on original_source/src/immagent/mcp.py's MCPManager for the
// connect/get_all_tools/execute/close contract this package actually
// implements — the original is stdio-only (spawn a subprocess and speak MCP
// over its stdin/stdout), so the teacher's additional Streamable-HTTP
// transport path (buildMCPHTTPClient, headerRoundTripper) has no
// counterpart here and is not carried over.
package toolgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/observability"
)

const implementationName = "immagent"

// connection tracks one live MCP server session under its server key, so
// Close can tear servers down and Execute can reach the session that owns a
// tool. The tools a server contributed are tracked in Manager.tools.
type connection struct {
	key     string
	session *mcppkg.ClientSession
}

// Manager holds every connected MCP server and the merged tool index built
// from them. A Manager is safe for concurrent Execute/AllTools calls but
// Connect/Close are expected to run during setup/teardown, not mid-turn.
type Manager struct {
	mu sync.RWMutex

	// order records connection order so Close can tear servers down in
	// reverse, the one correction this package makes over the original:
	// mcp.py's close() iterates a plain dict and gets insertion order "for
	// free" from CPython's guaranteed dict ordering; Go map iteration order
	// is randomized, so order is tracked explicitly here instead.
	order []string
	conns map[string]*connection
	tools map[string]*boundTool // tool name -> owning server's bound tool
}

// boundTool is one MCP tool bound to the server connection that serves it.
type boundTool struct {
	server string
	tool   *mcppkg.Tool
	schema llmclient.ToolSchema
}

// NewManager creates an empty gateway with no connected servers.
func NewManager() *Manager {
	return &Manager{
		conns: map[string]*connection{},
		tools: map[string]*boundTool{},
	}
}

// Connect launches command as a subprocess (args/env/cwd applied) and
// speaks MCP over its stdio, registering every tool it advertises. Calling
// Connect again with a key already in use replaces that server's
// connection and re-registers its tools.
func (m *Manager) Connect(ctx context.Context, key, command string, args []string, env map[string]string, cwd string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("toolgateway: server key required")
	}
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("toolgateway: command required for server %q", key)
	}

	m.closeOne(key)

	cmd := exec.Command(command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}

	client := mcppkg.NewClient(&mcppkg.Implementation{Name: implementationName}, nil)
	session, err := client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("toolgateway: connect %q: %w", key, err)
	}

	m.mu.Lock()
	m.conns[key] = &connection{key: key, session: session}
	m.order = append(m.order, key)
	m.mu.Unlock()

	log := observability.LoggerWithTrace(ctx)
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			break
		}
		bt := &boundTool{server: key, tool: tool, schema: toolSchema(tool)}
		name := bt.schema.Name

		m.mu.Lock()
		if _, exists := m.tools[name]; exists {
			log.Debug().Str("tool", name).Str("server", key).Msg("tool_gateway_name_shadowed")
		}
		m.tools[name] = bt
		m.mu.Unlock()
	}
	return nil
}

// AllTools returns the merged tool schema across every connected server, in
// the provider-agnostic shape llmclient.CompletionRequest expects.
func (m *Manager) AllTools() []llmclient.ToolSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]llmclient.ToolSchema, 0, len(m.tools))
	for _, bt := range m.tools {
		out = append(out, bt.schema)
	}
	return out
}

// Execute runs the named tool with argumentsJSON (a raw JSON object) and
// returns its textual result. An unknown tool name is not a Go error: it
// comes back as an "Error: Unknown tool ..." string, matching mcp.py's
// execute() contract. A failed call (owning server gone, invalid arguments
// JSON, transport error, or a result flagged as an error) returns an
// *immerr.ToolExecutionError, which turn.DispatchToolCalls turns into
// "Error: ..." tool output so the turn is not aborted.
func (m *Manager) Execute(ctx context.Context, name string, argumentsJSON string) (string, error) {
	m.mu.RLock()
	bt, ok := m.tools[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Error: Unknown tool '%s'", name), nil
	}

	m.mu.RLock()
	conn, ok := m.conns[bt.server]
	m.mu.RUnlock()
	if !ok {
		return "", immerr.NewToolExecutionError(name, "owning server is no longer connected")
	}

	var args any
	if strings.TrimSpace(argumentsJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return "", immerr.NewToolExecutionError(name, "invalid arguments JSON: "+err.Error())
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := conn.session.CallTool(ctx, &mcppkg.CallToolParams{Name: bt.tool.Name, Arguments: args})
	if err != nil {
		return "", immerr.NewToolExecutionError(name, err.Error())
	}

	var texts []string
	var nonText []any
	for _, c := range res.Content {
		if tc, ok := c.(*mcppkg.TextContent); ok {
			texts = append(texts, tc.Text)
			continue
		}
		nonText = append(nonText, c)
	}
	if res.IsError {
		return "", immerr.NewToolExecutionError(name, strings.Join(texts, "\n"))
	}
	if len(nonText) > 0 {
		if b, err := json.Marshal(nonText); err == nil {
			texts = append(texts, string(b))
		}
	}
	return strings.Join(texts, "\n"), nil
}

// Close tears every connected server down in reverse connection order and
// clears the tool index. Errors from individual sessions are collected,
// not short-circuited, so one unresponsive server doesn't block the rest
// from shutting down.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	var errs []string
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.closeOne(order[i]); err != nil {
			errs = append(errs, err.Error())
		}
	}

	m.mu.Lock()
	m.order = nil
	m.tools = map[string]*boundTool{}
	m.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("toolgateway: close: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Manager) closeOne(key string) error {
	m.mu.Lock()
	conn, ok := m.conns[key]
	if ok {
		delete(m.conns, key)
		for name, bt := range m.tools {
			if bt.server == key {
				delete(m.tools, name)
			}
		}
		for i, k := range m.order {
			if k == key {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.session.Close()
}

func toolSchema(t *mcppkg.Tool) llmclient.ToolSchema {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	if t.InputSchema != nil {
		if b, err := json.Marshal(t.InputSchema); err == nil {
			var decoded map[string]any
			if json.Unmarshal(b, &decoded) == nil && decoded != nil {
				for k, v := range decoded {
					params[k] = v
				}
			}
		}
	}
	if params["type"] != "object" {
		params["type"] = "object"
	}
	if _, ok := params["properties"]; !ok || params["properties"] == nil {
		params["properties"] = map[string]any{}
	}
	sanitizeSchema(params, "")

	return llmclient.ToolSchema{
		Name:        sanitizeName(t.Name),
		Description: t.Description,
		Parameters:  params,
	}
}
