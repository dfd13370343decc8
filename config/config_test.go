package config

import (
	"os"
	"testing"
)

func TestFirstNonEmpty(t *testing.T) {
	if v := firstNonEmpty("", "foo", "bar"); v != "foo" {
		t.Fatalf("expected 'foo', got %q", v)
	}
	if v := firstNonEmpty(); v != "" {
		t.Fatalf("expected empty, got %q", v)
	}
}

func TestParseInt(t *testing.T) {
	n, err := parseInt(" 42 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
	if _, err := parseInt("notanint"); err == nil {
		t.Fatalf("expected error for invalid int")
	}
}

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "DB_POOL_MIN_SIZE", "DB_POOL_MAX_SIZE", "DB_POOL_MAX_IDLE_SECONDS",
		"LOG_LEVEL", "DEFAULT_MODEL", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"LLM_MAX_RETRIES", "LLM_TIMEOUT_SECONDS", "LLM_MAX_TOOL_ROUNDS",
	} {
		old := os.Getenv(key)
		_ = os.Unsetenv(key)
		defer func(k, v string) {
			if v != "" {
				_ = os.Setenv(k, v)
			}
		}(key, old)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPoolMaxSize != 8 || cfg.DBPoolMinSize != 0 {
		t.Fatalf("expected default pool bounds 0/8, got %d/%d", cfg.DBPoolMinSize, cfg.DBPoolMaxSize)
	}
	if cfg.LLMMaxRetries != 3 || cfg.LLMMaxToolRounds != 10 {
		t.Fatalf("expected default retry/round limits 3/10, got %d/%d", cfg.LLMMaxRetries, cfg.LLMMaxToolRounds)
	}
	if cfg.DefaultModel == "" {
		t.Fatalf("expected a non-empty default model")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("DB_POOL_MAX_SIZE", "20")
	t.Setenv("LLM_MAX_RETRIES", "5")
	t.Setenv("LLM_TIMEOUT_SECONDS", "45.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPoolMaxSize != 20 {
		t.Fatalf("expected pool max size 20, got %d", cfg.DBPoolMaxSize)
	}
	if cfg.LLMMaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.LLMMaxRetries)
	}
	if cfg.LLMTimeoutSeconds != 45.5 {
		t.Fatalf("expected timeout 45.5, got %f", cfg.LLMTimeoutSeconds)
	}
}
