package llm

import (
	"errors"
	"testing"

	xerrors "AI-Agency/internal/errors"
)

func defaultsForTest() Defaults {
	return Defaults{
		Provider: ProviderDeepSeek,
		Models: map[Provider]string{
			ProviderAnthropic:  "claude-3-5-sonnet-20240620",
			ProviderGoogle:     "gemini-2.0-flash",
			ProviderDeepSeek:   "deepseek-chat",
			ProviderPerplexity: "sonar-pro",
		},
	}
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	cfg, err := Resolve(nil, defaultsForTest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Provider != ProviderDeepSeek || cfg.Model != "deepseek-chat" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestResolveMetaOverrides(t *testing.T) {
	meta := &Meta{LLMProvider: "anthropic", Model: "claude-3-opus"}
	cfg, err := Resolve(meta, defaultsForTest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Provider != ProviderAnthropic || cfg.Model != "claude-3-opus" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestResolveProviderWithoutModelUsesProviderDefault(t *testing.T) {
	meta := &Meta{LLMProvider: "google"}
	cfg, err := Resolve(meta, defaultsForTest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected model: %s", cfg.Model)
	}
}

func TestResolveExplicitDefaultKeepsProcessProvider(t *testing.T) {
	meta := &Meta{LLMProvider: "default"}
	cfg, err := Resolve(meta, defaultsForTest())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Provider != ProviderDeepSeek {
		t.Fatalf("unexpected provider: %s", cfg.Provider)
	}
}

func TestResolveRejectsUnknownProvider(t *testing.T) {
	meta := &Meta{LLMProvider: "openai"}
	if _, err := Resolve(meta, defaultsForTest()); !errors.Is(err, xerrors.New(xerrors.CodeValidation, "")) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
