package job

import (
	"context"
	"log/slog"
	"time"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/pkg/logger"
)

// Janitor 周期性清理超过保留时间的终态作业，防止存储无限增长。
type Janitor struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor 创建 Janitor。ttl 默认 1 小时，interval 默认 5 分钟。
func NewJanitor(store Store, ttl, interval time.Duration) (*Janitor, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置作业存储")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{store: store, ttl: ttl, interval: interval, now: time.Now}, nil
}

// Run 阻塞运行清理循环，直到上下文取消。
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	cutoff := j.now().Add(-j.ttl).Unix()
	removed, err := j.store.Sweep(ctx, cutoff)
	if err != nil {
		logger.L().Error("清理过期作业失败", slog.Any("error", err))
		return
	}
	if removed > 0 {
		logger.L().Info("已清理过期作业", slog.Int("removed", removed), slog.Int64("cutoff", cutoff))
	}
}
