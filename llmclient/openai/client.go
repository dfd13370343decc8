// Package openai adapts the Chat Completions API to llmclient.Provider,
// grounded on internal/llm/openai/client.go and schema.go but trimmed to the
// single non-streaming call C2 needs: no Responses API, no Gemini raw-HTTP
// path, no self-hosted tokenizer fallback, no image generation.
package openai

import (
	"context"
	"strings"

	"net/http"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/observability"
)

type Client struct {
	sdk sdk.Client
}

// New builds a Provider backed by the OpenAI SDK. baseURL is optional and
// lets the same provider talk to OpenAI-compatible self-hosted endpoints.
func New(apiKey, baseURL string, httpClient *http.Client) llmclient.Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &Client{sdk: sdk.NewClient(opts...)}
}

func bareModel(model string) string {
	_, rest, ok := strings.Cut(model, "/")
	if !ok {
		return model
	}
	return rest
}

func (c *Client) Complete(ctx context.Context, req llmclient.CompletionRequest) (conversation.Message, llmclient.Usage, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(bareModel(req.Model)),
		Messages: adaptMessages(req.System, req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = adaptTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdk.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = sdk.Int(int64(*req.MaxTokens))
	}

	log := observability.LoggerWithTrace(ctx)
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("openai_complete_error")
		return conversation.Message{}, llmclient.Usage{}, err
	}
	if len(comp.Choices) == 0 {
		return conversation.Message{}, llmclient.Usage{}, nil
	}

	msg, usage, err := messageFromChoice(comp.Choices[0], comp.Usage)
	if err != nil {
		return conversation.Message{}, llmclient.Usage{}, err
	}
	log.Debug().
		Str("model", string(params.Model)).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Msg("openai_complete_ok")
	return msg, usage, nil
}

func adaptTools(tools []llmclient.ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  t.Parameters,
		}
		out = append(out, sdk.ChatCompletionFunctionTool(def))
	}
	return out
}

func adaptMessages(system string, msgs []conversation.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, sdk.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, sdk.UserMessage(contentOf(m)))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(contentOf(m)))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(contentOf(m))
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: tc.Arguments,
						Name:      tc.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			id := ""
			if m.ToolCallID != nil {
				id = *m.ToolCallID
			}
			out = append(out, sdk.ToolMessage(contentOf(m), id))
		}
	}
	return out
}

func contentOf(m conversation.Message) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func messageFromChoice(choice sdk.ChatCompletionChoice, usage sdk.CompletionUsage) (conversation.Message, llmclient.Usage, error) {
	var calls []conversation.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			calls = append(calls, conversation.ToolCall{
				ID:        v.ID,
				Name:      v.Function.Name,
				Arguments: v.Function.Arguments,
			})
		}
	}
	u := llmclient.Usage{
		InputTokens:  int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
	}
	content := choice.Message.Content
	msg, err := conversation.NewAssistantMessage(&content, calls, &u.InputTokens, &u.OutputTokens)
	return msg, u, err
}
