package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"AI-Agency/internal/auth"
	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/job"
	"AI-Agency/internal/llm"
	"AI-Agency/internal/observability/metrics"
	"AI-Agency/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server 暴露 crew 网关的 REST 接口。
type Server struct {
	addr   string
	apiKey string
	runner *crew.Runner
	jobs   *job.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr, apiKey string, runner *crew.Runner, jobs *job.Service) *Server {
	return &Server{addr: addr, apiKey: apiKey, runner: runner, jobs: jobs}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 组装完整的路由。认证在任何查找或解析之前短路。
func (s *Server) Handler() http.Handler {
	protect := auth.Middleware(s.apiKey)
	mux := http.NewServeMux()

	mux.Handle("POST /crews/{name}/run", s.route("run_crew", protect(http.HandlerFunc(s.handleRunCrew))))
	mux.Handle("GET /jobs/{id}", s.route("get_job", protect(http.HandlerFunc(s.handleGetJob))))
	mux.Handle("GET /jobs", s.route("list_jobs", protect(http.HandlerFunc(s.handleListJobs))))
	mux.Handle("GET /stats", s.route("stats", protect(http.HandlerFunc(s.handleStats))))
	mux.Handle("GET /health", s.route("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// route 为每个请求生成 trace id 并记录指标。
func (s *Server) route(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logger.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type runRequest struct {
	Input map[string]any `json:"input"`
	Meta  *llm.Meta      `json:"meta,omitempty"`
}

func (s *Server) handleRunCrew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "async 参数必须是布尔值"))
			return
		}
		async = parsed
	}

	var req runRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "请求体解析失败"))
		return
	}
	if req.Input == nil {
		writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "input 字段不能为空"))
		return
	}

	if async {
		// 未知厂商或未知 crew 在创建任何作业之前即被拒绝。
		if err := s.runner.Validate(name, req.Meta); err != nil {
			writeError(ctx, w, err)
			return
		}
		submitted, err := s.jobs.Submit(ctx, job.SubmitRequest{
			Crew:    name,
			Input:   req.Input,
			Meta:    req.Meta,
			TraceID: logger.TraceID(ctx),
		})
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"crew":     name,
			"trace_id": logger.TraceID(ctx),
			"job_id":   submitted.ID,
			"status":   submitted.Status,
		})
		return
	}

	result, err := s.runner.Run(ctx, name, req.Input, req.Meta)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"crew":     name,
		"trace_id": logger.TraceID(ctx),
		"result":   result,
		"error":    nil,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	found, err := s.jobs.Get(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"ok":       true,
		"job_id":   found.ID,
		"status":   found.Status,
		"crew":     found.Crew,
		"trace_id": found.TraceID,
		"result":   found.Result,
		"error":    nil,
	}
	if found.Status == job.StatusFailed {
		payload["error"] = map[string]any{
			"code":    found.ErrorCode,
			"message": found.LastError,
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := make([]job.ListOption, 0, 4)
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := make([]job.Status, 0, 4)
		for _, part := range strings.Split(raw, ",") {
			status := job.Status(strings.TrimSpace(part))
			if !job.IsValidStatus(status) {
				writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "未知的作业状态: "+string(status)))
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := r.URL.Query().Get("crew"); raw != "" {
		opts = append(opts, job.WithCrew(raw))
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "limit 参数必须是正整数"))
			return
		}
		opts = append(opts, job.WithLimit(parsed))
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(ctx, w, xerrors.New(xerrors.CodeValidation, "offset 参数必须是非负整数"))
			return
		}
		opts = append(opts, job.WithOffset(parsed))
	}

	jobs, err := s.jobs.List(ctx, opts...)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"jobs": jobs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"stats": stats,
		"crews": s.runner.Names(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将错误映射为统一的错误信封与 HTTP 状态码。
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	message := xerrors.AttributesOf(code).Message
	if e, ok := xerrors.From(err); ok && e.Message() != "" {
		message = e.Message()
	}

	status := http.StatusInternalServerError
	switch code {
	case xerrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case xerrors.CodeValidation:
		status = http.StatusUnprocessableEntity
	case xerrors.CodeNotFound, crew.CodeCrewNotFound, job.CodeJobNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict:
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("请求处理失败", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{
		"ok":       false,
		"trace_id": logger.TraceID(ctx),
		"error": map[string]any{
			"code":    string(code),
			"message": message,
		},
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// statusWriter 捕获响应状态码用于指标统计。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
