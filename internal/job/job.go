package job

import (
	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

// Status 表示作业在生命周期中的状态，只能单向前进。
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job 描述了一次异步 crew 执行的完整状态。
// Result 仅在 done 时存在，LastError 仅在 failed 时存在，二者互斥。
type Job struct {
	ID         string         `json:"id"`
	Crew       string         `json:"crew"`
	TraceID    string         `json:"trace_id"`
	Status     Status         `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Meta       *llm.Meta      `json:"meta,omitempty"`
	Result     *crew.Result   `json:"result,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的作业不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示作业在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示作业已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示作业的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
	// ErrJobTerminal 表示作业已处于终态，不允许再次写入结果。
	ErrJobTerminal = xerrors.New(xerrors.CodeTerminal, "job already reached a terminal state")
)

const (
	CodeJobNotFound  xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict  xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobPublish   xerrors.Code = "JOB_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// IsValidStatus 检查给定的作业状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusQueued, StatusRunning, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneInput(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	cloned := make(map[string]any, len(input))
	for key, value := range input {
		cloned[key] = value
	}
	return cloned
}

func cloneResult(result *crew.Result) *crew.Result {
	if result == nil {
		return nil
	}
	cloned := *result
	if result.InputSummary != nil {
		summary := make(map[string]string, len(result.InputSummary))
		for key, value := range result.InputSummary {
			summary[key] = value
		}
		cloned.InputSummary = summary
	}
	return &cloned
}

func cloneMeta(meta *llm.Meta) *llm.Meta {
	if meta == nil {
		return nil
	}
	cloned := *meta
	return &cloned
}

func cloneJob(job *Job) *Job {
	clone := *job
	clone.Input = cloneInput(job.Input)
	clone.Meta = cloneMeta(job.Meta)
	clone.Result = cloneResult(job.Result)
	return &clone
}
