package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"AI-Agency/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var captured struct {
		APIKey  string
		Version string
		Body    map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.APIKey = r.Header.Get("x-api-key")
		captured.Version = r.Header.Get("anthropic-version")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "营销文案"},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	resp, err := client.Generate(context.Background(), llm.Request{System: "你是营销专家", Prompt: "写一句口号"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "营销文案" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if captured.APIKey != "test" {
		t.Fatalf("x-api-key header missing: %q", captured.APIKey)
	}
	if captured.Version == "" {
		t.Fatalf("anthropic-version header missing")
	}
	if captured.Body["system"] == "" {
		t.Fatalf("system field missing in request")
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "test"}); err == nil {
		t.Fatalf("expected error when http status is not success")
	}
}
