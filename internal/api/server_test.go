package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"AI-Agency/internal/crew"
	"AI-Agency/internal/job"
	"AI-Agency/internal/llm"
)

const testAPIKey = "test-key"

type echoClient struct{}

func (echoClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: "echo: " + req.Prompt}, nil
}

func testDefaults() llm.Defaults {
	return llm.Defaults{
		Provider: llm.ProviderDeepSeek,
		Models: map[llm.Provider]string{
			llm.ProviderDeepSeek:   "deepseek-chat",
			llm.ProviderAnthropic:  "claude-3-5-sonnet-20240620",
			llm.ProviderPerplexity: "sonar-pro",
		},
	}
}

type testEnv struct {
	server  *httptest.Server
	jobs    *job.Service
	store   *job.MemoryStore
	queue   *job.MemoryQueue
	runner  *crew.Runner
	cleanup func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry, err := crew.NewRegistry(crew.BuiltinDefinitions()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	factory := func(llm.ProviderConfig) (llm.Client, error) { return echoClient{}, nil }
	executor, err := crew.NewExecutor(factory, testDefaults(), time.Second)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	runner, err := crew.NewRunner(registry, executor, testDefaults())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}

	store := job.NewMemoryStore()
	queue := job.NewMemoryQueue(64)
	jobs := job.NewService(store, queue, 3)

	server := httptest.NewServer(NewServer(":0", testAPIKey, runner, jobs).Handler())
	return &testEnv{
		server:  server,
		jobs:    jobs,
		store:   store,
		queue:   queue,
		runner:  runner,
		cleanup: server.Close,
	}
}

func doRequest(t *testing.T, method, url string, body []byte, withKey bool) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestRunCrewSync(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	body := []byte(`{"input":{"topic":"espresso machines"}}`)
	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/marketing/run", body, true)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, decoded)
	}
	if decoded["ok"] != true || decoded["crew"] != "marketing" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
	result, ok := decoded["result"].(map[string]any)
	if !ok {
		t.Fatalf("missing result: %v", decoded)
	}
	if result["workflow"] != "marketing" || result["provider"] != "deepseek" {
		t.Fatalf("unexpected result: %v", result)
	}
	if decoded["trace_id"] == "" {
		t.Fatalf("missing trace id: %v", decoded)
	}
}

func TestRunCrewRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	body := []byte(`{"input":{"topic":"x"}}`)
	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/marketing/run", body, false)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	errBody, _ := decoded["error"].(map[string]any)
	if errBody["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
}

func TestRunCrewUnknownCrew(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	body := []byte(`{"input":{"topic":"x"}}`)
	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/nonexistent/run", body, true)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", resp.StatusCode, decoded)
	}
	errBody, _ := decoded["error"].(map[string]any)
	if errBody["code"] != "CREW_NOT_FOUND" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
}

func TestRunCrewAsyncUnknownCrewCreatesNoJob(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	body := []byte(`{"input":{"topic":"x"}}`)
	resp, _ := doRequest(t, http.MethodPost, env.server.URL+"/crews/nonexistent/run?async=true", body, true)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	stats, err := env.jobs.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("no job must be created for an unknown crew, got %+v", stats)
	}
}

func TestRunCrewMissingInput(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/marketing/run", []byte(`{}`), true)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, decoded)
	}
	errBody, _ := decoded["error"].(map[string]any)
	if errBody["code"] != "VALIDATION_FAILED" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
}

func TestRunCrewUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	body := []byte(`{"input":{"topic":"x"},"meta":{"llm_provider":"openai"}}`)
	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/marketing/run", body, true)

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, decoded)
	}
}

func TestRunCrewAsyncAndPollJob(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	processor := job.NewProcessor(env.runner, env.store, env.queue, env.queue, job.WithWorkerCount(2))
	go func() { _ = processor.Start(ctx) }()

	body := []byte(`{"input":{"topic":"cold brew"}}`)
	resp, decoded := doRequest(t, http.MethodPost, env.server.URL+"/crews/marketing/run?async=true", body, true)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, decoded)
	}
	jobID, _ := decoded["job_id"].(string)
	if jobID == "" || decoded["status"] != "queued" {
		t.Fatalf("unexpected async envelope: %v", decoded)
	}

	if _, err := env.jobs.WaitUntilCompleted(ctx, jobID, 20*time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}

	resp, decoded = doRequest(t, http.MethodGet, env.server.URL+"/jobs/"+jobID, nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, decoded)
	}
	if decoded["status"] != "done" {
		t.Fatalf("expected done job, got %v", decoded)
	}
	result, _ := decoded["result"].(map[string]any)
	if result == nil || result["workflow"] != "marketing" {
		t.Fatalf("unexpected job result: %v", decoded)
	}
	if decoded["error"] != nil {
		t.Fatalf("done job must not carry an error: %v", decoded)
	}
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	resp, decoded := doRequest(t, http.MethodGet, env.server.URL+"/jobs/nope", nil, true)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", resp.StatusCode, decoded)
	}
	errBody, _ := decoded["error"].(map[string]any)
	if errBody["code"] != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
}

func TestListJobsAndStats(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	if _, err := env.jobs.Submit(ctx, job.SubmitRequest{Crew: "marketing", Input: map[string]any{"topic": "a"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.jobs.Submit(ctx, job.SubmitRequest{Crew: "support", Input: map[string]any{"issue": "b"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	resp, decoded := doRequest(t, http.MethodGet, env.server.URL+"/jobs?crew=marketing", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, decoded)
	}
	jobs, _ := decoded["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 marketing job, got %v", decoded)
	}

	resp, decoded = doRequest(t, http.MethodGet, env.server.URL+"/jobs?status=bogus", nil, true)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bogus status, got %d", resp.StatusCode)
	}

	resp, decoded = doRequest(t, http.MethodGet, env.server.URL+"/stats", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, decoded)
	}
	stats, _ := decoded["stats"].(map[string]any)
	if stats == nil || stats["total"].(float64) != 2 {
		t.Fatalf("unexpected stats: %v", decoded)
	}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	resp, decoded := doRequest(t, http.MethodGet, env.server.URL+"/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if decoded["ok"] != true {
		t.Fatalf("unexpected health envelope: %v", decoded)
	}
}
