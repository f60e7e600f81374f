package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
	"AI-Agency/internal/observability/alerting"
	"AI-Agency/internal/observability/metrics"
	"AI-Agency/pkg/logger"
)

// Runner 定义了处理器执行一次 crew 所需的能力。
type Runner interface {
	Run(ctx context.Context, crewName string, input map[string]any, meta *llm.Meta) (*crew.Result, error)
}

// Processor 负责从队列消费作业并交给 crew 执行。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动作业处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置作业消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobTerminal) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过作业", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取作业失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, xerrors.CodeExecution, err, "claim")
		return err
	}

	runCtx := logger.WithTraceID(ctx, job.TraceID)
	result, execErr := p.runner.Run(runCtx, job.Crew, cloneInput(job.Input), cloneMeta(job.Meta))
	if execErr != nil {
		return p.handleExecutionFailure(ctx, job, execErr)
	}

	var record crew.Result
	if result != nil {
		record = *result
	}
	if err := p.store.MarkDone(ctx, job.ID, record); err != nil {
		logger.L().Error("标记作业成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		if storeErr := p.store.MarkFailed(ctx, job.ID, xerrors.CodeStorageFailure, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("作业 %s 在标记成功失败后重投失败", job.ID))
		}
		logger.Audit().Warn("作业标记成功失败后重试",
			slog.String("job_id", job.ID),
			slog.String("crew", job.Crew),
			slog.String("error", err.Error()),
		)
		return nil
	}
	metrics.ObserveJobOutcome(job.Crew, string(StatusDone))
	logger.Audit().Info("作业执行成功",
		slog.String("job_id", job.ID),
		slog.String("crew", job.Crew),
		slog.String("trace_id", job.TraceID),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = xerrors.CodeExecution
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记作业失败状态出错", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("作业执行失败",
		slog.String("job_id", job.ID),
		slog.String("crew", job.Crew),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
		metrics.ObserveJobOutcome(job.Crew, string(StatusFailed))
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, job, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("作业 %s 重投失败", job.ID))
		}
		p.logDebug("作业已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, job *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || job == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		JobID:      job.ID,
		Crew:       job.Crew,
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", job.ID),
			slog.String("stage", stage),
		)
	}
}
