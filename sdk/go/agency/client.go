package agency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultPollInterval is the delay between job polls in WaitForJob when the
// caller passes a non-positive interval.
const DefaultPollInterval = 500 * time.Millisecond

// HeaderAPIKey carries the API key on every request.
const HeaderAPIKey = "X-API-Key"

// Client wraps the HTTP interactions with the crew gateway REST API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// Meta optionally overrides the provider or model for a single run.
type Meta struct {
	LLMProvider string `json:"llm_provider,omitempty"`
	Model       string `json:"model,omitempty"`
}

// RunRequest represents the payload of a crew run.
type RunRequest struct {
	Input map[string]any `json:"input"`
	Meta  *Meta          `json:"meta,omitempty"`
}

// CrewResult contains the structured output of a completed crew run.
type CrewResult struct {
	Workflow     string            `json:"workflow"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	Output       string            `json:"output"`
	InputSummary map[string]string `json:"input_summary"`
}

// RunResult is the response of a synchronous crew run.
type RunResult struct {
	Crew    string      `json:"crew"`
	TraceID string      `json:"trace_id"`
	Result  *CrewResult `json:"result"`
}

// JobHandle contains minimal information about a submitted asynchronous job.
type JobHandle struct {
	JobID   string `json:"job_id"`
	Crew    string `json:"crew"`
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
}

// JobDetail contains an extended view of an asynchronous job.
type JobDetail struct {
	JobHandle
	Result *CrewResult `json:"result,omitempty"`
	Error  *JobError   `json:"error,omitempty"`
}

// JobError represents job level failures.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the job reached a final state.
func (d JobDetail) Terminal() bool {
	return d.Status == "done" || d.Status == "failed"
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agency api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agency api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the crew gateway API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL, apiKey string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, apiKey: apiKey, httpClient: httpClient}
}

// RunCrew executes a crew synchronously and returns its result.
func (c *Client) RunCrew(ctx context.Context, crewName string, req RunRequest) (RunResult, error) {
	var out RunResult
	endpoint := fmt.Sprintf("/crews/%s/run", url.PathEscape(crewName))
	if err := c.post(ctx, endpoint, req, &out); err != nil {
		return RunResult{}, err
	}
	return out, nil
}

// RunCrewAsync submits a crew run for background execution and returns the
// job handle used to poll its progress.
func (c *Client) RunCrewAsync(ctx context.Context, crewName string, req RunRequest) (JobHandle, error) {
	var out JobHandle
	endpoint := fmt.Sprintf("/crews/%s/run?async=true", url.PathEscape(crewName))
	if err := c.post(ctx, endpoint, req, &out); err != nil {
		return JobHandle{}, err
	}
	return out, nil
}

// GetJob fetches job details by identifier.
func (c *Client) GetJob(ctx context.Context, jobID string) (JobDetail, error) {
	var detail JobDetail
	endpoint := "/jobs/" + url.PathEscape(jobID)
	if err := c.get(ctx, endpoint, &detail); err != nil {
		return JobDetail{}, err
	}
	return detail, nil
}

// WaitForJob polls a job until it reaches a terminal state or the context is
// cancelled. A non-positive interval falls back to DefaultPollInterval.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (JobDetail, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetJob(ctx, jobID)
		if err != nil {
			return JobDetail{}, err
		}
		if detail.Terminal() {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return JobDetail{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey == "" {
		return nil, errors.New("agency: api key is not set")
	}
	req.Header.Set(HeaderAPIKey, c.apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
