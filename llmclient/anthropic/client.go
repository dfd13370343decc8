// Package anthropic adapts the Anthropic Messages API to llmclient.Provider,
// grounded on internal/llm/anthropic/client.go but trimmed to the single
// non-streaming call C2 needs: no extended thinking, no prompt caching, no
// tokenizer. Retry is not this package's job — llmclient.WithRetry wraps
// whatever Provider Build returns.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/observability"
)

const defaultMaxTokens int64 = 4096

type Client struct {
	sdk sdk.Client
}

// New builds a Provider backed by the Anthropic SDK. apiKey must already be
// known non-empty; the caller (llmclient.Build) validates presence.
func New(apiKey string, httpClient *http.Client) llmclient.Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	return &Client{sdk: sdk.NewClient(opts...)}
}

// bareModel strips the "anthropic/" provider prefix immagent's
// "provider/model" convention adds ahead of the wire model ID.
func bareModel(model string) string {
	_, rest, ok := strings.Cut(model, "/")
	if !ok {
		return model
	}
	return rest
}

func (c *Client) Complete(ctx context.Context, req llmclient.CompletionRequest) (conversation.Message, llmclient.Usage, error) {
	converted, err := adaptMessages(req.Messages)
	if err != nil {
		return conversation.Message{}, llmclient.Usage{}, immerr.NewLLMError(err)
	}
	toolDefs, err := adaptTools(req.Tools)
	if err != nil {
		return conversation.Message{}, llmclient.Usage{}, immerr.NewLLMError(err)
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(bareModel(req.Model)),
		Messages:  converted,
		Tools:     toolDefs,
		MaxTokens: maxTokens,
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}

	log := observability.LoggerWithTrace(ctx)
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("anthropic_complete_error")
		return conversation.Message{}, llmclient.Usage{}, err
	}

	msg, usage, err := messageFromResponse(resp)
	if err != nil {
		return conversation.Message{}, llmclient.Usage{}, err
	}
	log.Debug().
		Str("model", string(params.Model)).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Msg("anthropic_complete_ok")
	return msg, usage, nil
}

func adaptTools(tools []llmclient.ToolSchema) ([]sdk.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic provider: tool name required")
		}
		schema := sdk.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if reqd, ok := extras["required"]; ok {
			delete(extras, "required")
			if ss, ok := reqd.([]string); ok {
				schema.Required = ss
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}
		param := sdk.ToolParam{Name: name, InputSchema: schema}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			param.Description = sdk.String(desc)
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

func adaptMessages(msgs []conversation.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(contentOf(m))))
		case "assistant":
			blocks := []sdk.ContentBlockParamUnion{}
			if contentOf(m) != "" {
				blocks = append(blocks, sdk.NewTextBlock(contentOf(m)))
			}
			for i, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(id, decodeArgs(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case "tool":
			id := ""
			if m.ToolCallID != nil {
				id = *m.ToolCallID
			}
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(id, contentOf(m), false)))
		default:
			return nil, fmt.Errorf("unsupported role for anthropic provider: %s", m.Role)
		}
	}
	return out, nil
}

func contentOf(m conversation.Message) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func decodeArgs(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return map[string]any{}
}

func messageFromResponse(resp *sdk.Message) (conversation.Message, llmclient.Usage, error) {
	var sb strings.Builder
	var calls []conversation.ToolCall
	for i, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case sdk.TextBlock:
			sb.WriteString(v.Text)
		case sdk.ToolUseBlock:
			id := v.ID
			if id == "" {
				id = "call-" + strconv.Itoa(i+1)
			}
			args, _ := json.Marshal(v.Input)
			calls = append(calls, conversation.ToolCall{ID: id, Name: v.Name, Arguments: string(args)})
		}
	}
	usage := llmclient.Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	content := sb.String()
	msg, err := conversation.NewAssistantMessage(&content, calls, &usage.InputTokens, &usage.OutputTokens)
	return msg, usage, err
}
