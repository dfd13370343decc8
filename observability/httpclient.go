package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient wraps base's transport (http.DefaultTransport if base is
// nil) with otelhttp so every outbound LLM request gets a span, grounded on
// internal/observability/httpclient.go. Used as llmclient.Config's default
// HTTPClient when the caller doesn't supply its own.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	out := *base
	out.Transport = otelhttp.NewTransport(transport)
	return &out
}
