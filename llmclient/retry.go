package llmclient

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kgk9000/immagent/conversation"
	"github.com/kgk9000/immagent/immerr"
)

// RetryConfig controls the exponential backoff applied around a Provider's
// Complete call. None of the teacher's LLM clients implement retry
// themselves (manifold leans on LiteLLM's own num_retries); this is
// grounded instead on internal/tools/web/search.go's RateLimitConfig /
// DefaultRateLimitConfig pattern, adapted from rate-limited search retries
// to LLM-call retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// JitterPercent adds randomness to delays (0.0 to 1.0) so a herd of
	// retrying callers doesn't resynchronize on the same backoff curve.
	JitterPercent float64
	// PerAttemptTimeout bounds a single Complete call; zero means no
	// per-attempt timeout is applied beyond ctx's own deadline.
	PerAttemptTimeout time.Duration
}

// DefaultRetryConfig returns sane defaults matching the original
// implementation's complete() defaults (3 retries, 120s timeout).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          20 * time.Second,
		JitterPercent:     0.3,
		PerAttemptTimeout: 120 * time.Second,
	}
}

// WithRetry wraps p so that Complete is retried with exponential backoff on
// transient failures (network errors, HTTP 429, HTTP 5xx). Any other error
// ends the loop on its first occurrence. Either way the last error is
// returned wrapped as immerr.LLMError.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &retryingProvider{inner: p, cfg: cfg}
}

type retryingProvider struct {
	inner Provider
	cfg   RetryConfig
}

func (r *retryingProvider) Complete(ctx context.Context, req CompletionRequest) (conversation.Message, Usage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.PerAttemptTimeout)
		}
		msg, usage, err := r.inner.Complete(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return msg, usage, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == r.cfg.MaxRetries {
			break
		}

		delay := r.cfg.BaseDelay * (1 << attempt)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
		jitter := time.Duration(float64(delay) * r.cfg.JitterPercent * rand.Float64())
		select {
		case <-ctx.Done():
			return conversation.Message{}, Usage{}, immerr.NewLLMError(ctx.Err())
		case <-time.After(delay + jitter):
		}
	}
	return conversation.Message{}, Usage{}, immerr.NewLLMError(lastErr)
}

// isTransient reports whether err looks like a retryable network/5xx/429
// failure rather than a permanent request error (bad auth, bad schema...).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "timeout", "connection reset", "502", "503", "504", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
