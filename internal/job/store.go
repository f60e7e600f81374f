package job

import (
	"context"

	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
)

// Store 抽象了作业状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	MarkDone(ctx context.Context, id string, result crew.Result) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Sweep(ctx context.Context, olderThan int64) (int, error)
	Close() error
}
