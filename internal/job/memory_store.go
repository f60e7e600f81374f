package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
)

// MemoryStore 以内存方式保存作业状态，适用于单实例部署与测试。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeValidation, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeValidation, "作业 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get 返回作业的只读快照。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 将作业标记为运行中。终态作业返回快照与对应的类型化错误。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusDone:
		return cloneJob(job), ErrJobCompleted
	case StatusFailed:
		return cloneJob(job), ErrJobTerminal
	case StatusRunning:
		return cloneJob(job), ErrJobConflict
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// MarkDone 记录成功结果。终态作业上的写入被拒绝而不是被吞掉。
func (m *MemoryStore) MarkDone(_ context.Context, id string, result crew.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}
	job.Status = StatusDone
	job.Result = cloneResult(&result)
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记作业失败。terminal 为假时作业回到排队状态等待重试，
// failed 因此始终是终态。终态作业上的改写被拒绝。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}
	if terminal {
		job.Status = StatusFailed
	} else {
		job.Status = StatusQueued
	}
	job.Result = nil
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的作业。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		results = append(results, cloneJob(job))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Job{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的作业数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := JobStats{}
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		stats.Total++
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusRunning:
			stats.Running++
		case StatusDone:
			stats.Done++
		case StatusFailed:
			stats.Failed++
		}
		if job.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = job.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (job.UpdatedAt != 0 && job.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = job.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Sweep 删除更新时间早于 olderThan 的终态作业，返回删除数量。
func (m *MemoryStore) Sweep(_ context.Context, olderThan int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt < olderThan {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(job *Job, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if job.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Crew != "" && job.Crew != opts.Crew {
		return false
	}
	if opts.UpdatedGTE > 0 && job.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && job.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
