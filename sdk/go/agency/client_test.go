package agency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRunCrewSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crews/marketing/run" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get(HeaderAPIKey) != "secret" {
			t.Fatalf("expected api key header, got %q", r.Header.Get(HeaderAPIKey))
		}
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.Input["topic"] != "espresso" {
			t.Fatalf("unexpected input: %v", req.Input)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"crew":     "marketing",
			"trace_id": "trace-1",
			"result": CrewResult{
				Workflow: "marketing",
				Provider: "deepseek",
				Output:   "campaign plan",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", srv.Client())

	out, err := client.RunCrew(context.Background(), "marketing", RunRequest{
		Input: map[string]any{"topic": "espresso"},
	})
	if err != nil {
		t.Fatalf("run crew: %v", err)
	}
	if out.Result == nil || out.Result.Workflow != "marketing" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.TraceID != "trace-1" {
		t.Fatalf("unexpected trace id: %q", out.TraceID)
	}
}

func TestRunCrewAsyncReturnsHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("async") != "true" {
			t.Fatalf("expected async query, got %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"crew":     "support",
			"trace_id": "trace-2",
			"job_id":   "job-1",
			"status":   "queued",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", srv.Client())

	handle, err := client.RunCrewAsync(context.Background(), "support", RunRequest{
		Input: map[string]any{"issue": "billing"},
	})
	if err != nil {
		t.Fatalf("run crew async: %v", err)
	}
	if handle.JobID != "job-1" || handle.Status != "queued" {
		t.Fatalf("unexpected handle: %+v", handle)
	}
}

func TestGetJobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(struct {
			Error APIError `json:"error"`
		}{Error: APIError{Code: "JOB_NOT_FOUND", Message: "missing"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", srv.Client())

	_, err := client.GetJob(context.Background(), "job-404")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "JOB_NOT_FOUND" || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestWaitForJobPollsUntilTerminal(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "running"
		var result *CrewResult
		if polls >= 3 {
			status = "done"
			result = &CrewResult{Workflow: "analysis", Output: "report"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"job_id": "job-2",
			"status": status,
			"crew":   "analysis",
			"result": result,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := client.WaitForJob(ctx, "job-2", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for job: %v", err)
	}
	if detail.Status != "done" || detail.Result == nil || detail.Result.Output != "report" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if polls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("http://localhost:1", "", nil)
	if _, err := client.GetJob(context.Background(), "job-1"); err == nil {
		t.Fatal("expected error when api key is not set")
	}
}
