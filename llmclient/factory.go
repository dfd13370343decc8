package llmclient

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kgk9000/immagent/llmclient/anthropic"
	"github.com/kgk9000/immagent/llmclient/openai"
	"github.com/kgk9000/immagent/observability"
)

// Config carries the credentials/endpoints needed to build a Provider.
// Mirrors the subset of the teacher's config surface this module actually
// needs (see SPEC_FULL.md §6): no YAML, just environment-derived values.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string // optional, for OpenAI-compatible self-hosted endpoints
	HTTPClient      *http.Client
	Retry           RetryConfig
}

// Build dispatches on a LiteLLM-style "provider/model" string, matching the
// original's Model string-constant convention (e.g.
// "anthropic/claude-3-5-haiku-20241022", "openai/gpt-4o-mini") rather than
// a separate provider-selection config field as
// internal/llm/providers/factory.go does. The returned Provider is wrapped
// with the configured retry policy.
func Build(model string, cfg Config) (Provider, error) {
	provider, _, ok := strings.Cut(model, "/")
	if !ok {
		return nil, fmt.Errorf("llmclient: model %q is not in \"provider/model\" form", model)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(nil)
	}

	var p Provider
	switch strings.ToLower(provider) {
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, fmt.Errorf("llmclient: ANTHROPIC_API_KEY is required for model %q", model)
		}
		p = anthropic.New(cfg.AnthropicAPIKey, httpClient)
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("llmclient: OPENAI_API_KEY is required for model %q", model)
		}
		p = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, httpClient)
	default:
		return nil, fmt.Errorf("llmclient: unsupported provider %q in model %q", provider, model)
	}

	retryCfg := cfg.Retry
	if retryCfg == (RetryConfig{}) {
		retryCfg = DefaultRetryConfig()
	}
	return WithRetry(p, retryCfg), nil
}
