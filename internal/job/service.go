package job

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
	"AI-Agency/pkg/logger"
)

// SubmitRequest 描述一次异步作业的创建参数。
type SubmitRequest struct {
	Crew    string
	Input   map[string]any
	Meta    *llm.Meta
	TraceID string
}

// Service 负责作业的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造作业服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的作业并推送到队列。
// 入队失败时作业被标记为失败并返回错误，调用方不会拿到一个永远排队的作业。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if strings.TrimSpace(req.Crew) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "crew 名称不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "作业服务未初始化")
	}

	job := &Job{
		ID:         uuid.NewString(),
		Crew:       req.Crew,
		TraceID:    req.TraceID,
		Input:      cloneInput(req.Input),
		Meta:       cloneMeta(req.Meta),
		Status:     StatusQueued,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, job.ID); err != nil {
		logger.L().Error("作业入队失败", slog.Any("error", err), slog.String("job_id", job.ID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布作业到队列失败")
		_ = s.store.MarkFailed(ctx, job.ID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("作业入队成功",
		slog.String("job_id", job.ID),
		slog.String("crew", job.Crew),
		slog.String("trace_id", job.TraceID),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get 返回指定作业的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "作业存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的作业列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "作业存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的作业统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (JobStats, error) {
	if s.store == nil {
		return JobStats{}, xerrors.New(xerrors.CodeInitializationFailure, "作业存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询作业状态，直到进入终态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsNotFound 判断错误是否表示作业不存在。
func IsNotFound(err error) bool {
	return stdErrors.Is(err, ErrJobNotFound)
}
