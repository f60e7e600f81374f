package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AI-Agency/sdk/go/agency"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /crews/marketing/run", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("async") == "true" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":       true,
				"crew":     "marketing",
				"trace_id": "trace-demo",
				"job_id":   "job-demo",
				"status":   "queued",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"crew":     "marketing",
			"trace_id": "trace-demo",
			"result": agency.CrewResult{
				Workflow: "marketing",
				Provider: "deepseek",
				Model:    "deepseek-chat",
				Output:   "demo campaign plan",
			},
		})
	})
	mux.HandleFunc("GET /jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"job_id": "job-demo",
			"status": "done",
			"crew":   "marketing",
			"result": agency.CrewResult{
				Workflow: "marketing",
				Provider: "deepseek",
				Output:   "demo campaign plan",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agency.NewClient(srv.URL, "demo-key", srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := client.RunCrew(ctx, "marketing", agency.RunRequest{
		Input: map[string]any{"topic": "espresso machines"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("sync run finished: %s\n", out.Result.Output)

	handle, err := client.RunCrewAsync(ctx, "marketing", agency.RunRequest{
		Input: map[string]any{"topic": "cold brew"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", handle.JobID, handle.Status)

	detail, err := client.WaitForJob(ctx, handle.JobID, 50*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished with status=%s\n", detail.JobID, detail.Status)
}
