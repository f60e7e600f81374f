package crew

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

type fakeClient struct {
	provider llm.Provider
	reply    func(req llm.Request) (*llm.Response, error)
	requests []llm.Request
}

func (f *fakeClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.reply != nil {
		return f.reply(req)
	}
	return &llm.Response{Text: "output from " + string(f.provider)}, nil
}

func newFakeFactory() (llm.Factory, map[llm.Provider]*fakeClient) {
	clients := make(map[llm.Provider]*fakeClient)
	factory := func(cfg llm.ProviderConfig) (llm.Client, error) {
		client := &fakeClient{provider: cfg.Provider}
		clients[cfg.Provider] = client
		return client, nil
	}
	return factory, clients
}

func testDefaults() llm.Defaults {
	return llm.Defaults{
		Provider: llm.ProviderDeepSeek,
		Models: map[llm.Provider]string{
			llm.ProviderDeepSeek:   "deepseek-chat",
			llm.ProviderPerplexity: "sonar-pro",
		},
	}
}

func TestExecuteRendersInputs(t *testing.T) {
	factory, clients := newFakeFactory()
	executor, err := NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def, err := registry.Lookup("marketing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := llm.ProviderConfig{Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"}
	result, err := executor.Execute(context.Background(), def, map[string]any{"topic": "espresso machines"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Workflow != "marketing" || result.Provider != "deepseek" || result.Model != "deepseek-chat" {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if result.InputSummary["topic"] != "espresso machines" {
		t.Fatalf("unexpected input summary: %+v", result.InputSummary)
	}
	if result.InputSummary["target_audience"] != "general audience" {
		t.Fatalf("default input not applied: %+v", result.InputSummary)
	}

	client := clients[llm.ProviderDeepSeek]
	if client == nil || len(client.requests) != 1 {
		t.Fatalf("expected one call to the deepseek client")
	}
	prompt := client.requests[0].Prompt
	if !strings.Contains(prompt, "espresso machines") || !strings.Contains(prompt, "general audience") {
		t.Fatalf("placeholders not rendered: %q", prompt)
	}
	if strings.Contains(prompt, "{topic}") {
		t.Fatalf("unrendered placeholder in prompt: %q", prompt)
	}
}

func TestExecuteMissingRequiredInput(t *testing.T) {
	factory, _ := newFakeFactory()
	executor, err := NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, _ := NewRegistry(BuiltinDefinitions()...)
	def, _ := registry.Lookup("marketing")

	cfg := llm.ProviderConfig{Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"}
	_, err = executor.Execute(context.Background(), def, map[string]any{}, cfg)
	if xerrors.CodeOf(err) != xerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteChainsTaskOutputs(t *testing.T) {
	factory, clients := newFakeFactory()
	executor, err := NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, _ := NewRegistry(BuiltinDefinitions()...)
	def, err := registry.Lookup("social_media")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := llm.ProviderConfig{Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"}
	input := map[string]any{"industry": "coffee", "company_name": "Beanline"}
	result, err := executor.Execute(context.Background(), def, input, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// research agent 固定到 perplexity，其余任务走请求配置的厂商。
	research := clients[llm.ProviderPerplexity]
	if research == nil || len(research.requests) != 1 {
		t.Fatalf("expected the research task to use the perplexity client")
	}
	rest := clients[llm.ProviderDeepSeek]
	if rest == nil || len(rest.requests) != 3 {
		t.Fatalf("expected three tasks on the default provider, got %d", len(rest.requests))
	}

	// build_schedule 的提示词应包含 create_content 与 analyze_performance 的输出。
	last := rest.requests[len(rest.requests)-1].Prompt
	if !strings.Contains(last, "output from deepseek") {
		t.Fatalf("prior task output not chained into prompt: %q", last)
	}

	if result.Provider != "deepseek" {
		t.Fatalf("result provider should reflect the request config: %+v", result)
	}
}

func TestExecuteWrapsGenerateFailure(t *testing.T) {
	boom := errors.New("upstream unavailable")
	factory := func(cfg llm.ProviderConfig) (llm.Client, error) {
		return &fakeClient{provider: cfg.Provider, reply: func(llm.Request) (*llm.Response, error) {
			return nil, boom
		}}, nil
	}
	executor, err := NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, _ := NewRegistry(BuiltinDefinitions()...)
	def, _ := registry.Lookup("marketing")

	cfg := llm.ProviderConfig{Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"}
	_, err = executor.Execute(context.Background(), def, map[string]any{"topic": "x"}, cfg)
	if xerrors.CodeOf(err) != xerrors.CodeExecution {
		t.Fatalf("expected execution error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestExecuteMarksTimeout(t *testing.T) {
	factory := func(cfg llm.ProviderConfig) (llm.Client, error) {
		return &fakeClient{provider: cfg.Provider, reply: func(llm.Request) (*llm.Response, error) {
			return nil, context.DeadlineExceeded
		}}, nil
	}
	executor, err := NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry, _ := NewRegistry(BuiltinDefinitions()...)
	def, _ := registry.Lookup("marketing")

	cfg := llm.ProviderConfig{Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"}
	_, err = executor.Execute(context.Background(), def, map[string]any{"topic": "x"}, cfg)
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
