// Package config loads immagent's runtime configuration from the
// environment, grounded on internal/config/loader.go's Load/Overload/
// firstNonEmpty/parseInt idiom but scoped down to the env-var surface this
// module actually needs: database connection, logging, per-provider LLM
// credentials/limits, and the OTLP resource attributes InitOTel wants.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kgk9000/immagent/llmclient"
	"github.com/kgk9000/immagent/observability"
)

// Config is immagent's full runtime configuration, assembled by Load.
type Config struct {
	DatabaseURL string

	DBPoolMinSize      int32
	DBPoolMaxSize      int32
	DBPoolMaxIdleSecs  int

	LogLevel string

	DefaultModel string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string

	LLMMaxRetries     int
	LLMTimeoutSeconds float64
	LLMMaxToolRounds  int

	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

// Load reads configuration from the environment, overlaying any .env file
// the same way the teacher's Load does with godotenv.Overload — local
// .env values win over whatever the process was launched with.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		DBPoolMinSize:     0,
		DBPoolMaxSize:     8,
		DBPoolMaxIdleSecs: 300,
		LogLevel:          "info",
		DefaultModel:      "anthropic/claude-3-5-haiku-20241022",
		LLMMaxRetries:     3,
		LLMTimeoutSeconds: 120,
		LLMMaxToolRounds:  10,
		ServiceName:       "immagent-demo",
		ServiceVersion:    "dev",
		Environment:       "development",
	}

	cfg.DatabaseURL = trimmed("DATABASE_URL")
	cfg.LogLevel = firstNonEmpty(trimmed("LOG_LEVEL"), cfg.LogLevel)
	cfg.DefaultModel = firstNonEmpty(trimmed("DEFAULT_MODEL"), cfg.DefaultModel)
	cfg.AnthropicAPIKey = trimmed("ANTHROPIC_API_KEY")
	cfg.OpenAIAPIKey = trimmed("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = trimmed("OPENAI_BASE_URL")
	cfg.ServiceName = firstNonEmpty(trimmed("SERVICE_NAME"), cfg.ServiceName)
	cfg.ServiceVersion = firstNonEmpty(trimmed("SERVICE_VERSION"), cfg.ServiceVersion)
	cfg.Environment = firstNonEmpty(trimmed("ENVIRONMENT"), cfg.Environment)
	cfg.OTLPEndpoint = trimmed("OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := trimmed("DB_POOL_MIN_SIZE"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.DBPoolMinSize = int32(n)
		}
	}
	if v := trimmed("DB_POOL_MAX_SIZE"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.DBPoolMaxSize = int32(n)
		}
	}
	if v := trimmed("DB_POOL_MAX_IDLE_SECONDS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.DBPoolMaxIdleSecs = n
		}
	}
	if v := trimmed("LLM_MAX_RETRIES"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMMaxRetries = n
		}
	}
	if v := trimmed("LLM_TIMEOUT_SECONDS"); v != "" {
		if n, err := parseFloat(v); err == nil {
			cfg.LLMTimeoutSeconds = n
		}
	}
	if v := trimmed("LLM_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMMaxToolRounds = n
		}
	}

	return cfg, nil
}

// MaxConnIdleTime converts DBPoolMaxIdleSecs to a time.Duration for
// store.WithPoolSize.
func (c Config) MaxConnIdleTime() time.Duration {
	return time.Duration(c.DBPoolMaxIdleSecs) * time.Second
}

// LLMConfig builds the llmclient.Config this module's Store needs,
// carrying over the retry/timeout limits this Config loaded.
func (c Config) LLMConfig() llmclient.Config {
	retry := llmclient.DefaultRetryConfig()
	retry.MaxRetries = c.LLMMaxRetries
	retry.PerAttemptTimeout = time.Duration(c.LLMTimeoutSeconds * float64(time.Second))
	return llmclient.Config{
		AnthropicAPIKey: c.AnthropicAPIKey,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		Retry:           retry,
	}
}

// ObsConfig builds the observability.ObsConfig InitOTel needs from this
// Config's service/environment fields.
func (c Config) ObsConfig() observability.ObsConfig {
	return observability.ObsConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLP:           c.OTLPEndpoint,
	}
}

func trimmed(envVar string) string {
	return strings.TrimSpace(os.Getenv(envVar))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
