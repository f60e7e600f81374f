package crew

import (
	"context"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

// Runner 把厂商解析、crew 查找与执行串成一次完整运行，
// 同步接口与异步 worker 共用同一条路径。
type Runner struct {
	registry *Registry
	executor *Executor
	defaults llm.Defaults
}

// NewRunner 创建 Runner。
func NewRunner(registry *Registry, executor *Executor, defaults llm.Defaults) (*Runner, error) {
	if registry == nil || executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "crew runner 依赖未初始化")
	}
	return &Runner{registry: registry, executor: executor, defaults: defaults}, nil
}

// Run 解析厂商配置、查找 crew 并执行。
// 厂商解析先于 crew 查找，未知厂商在创建任何作业之前即被拒绝。
func (r *Runner) Run(ctx context.Context, name string, input map[string]any, meta *llm.Meta) (*Result, error) {
	cfg, err := llm.Resolve(meta, r.defaults)
	if err != nil {
		return nil, err
	}
	def, err := r.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.executor.Execute(ctx, def, input, cfg)
}

// Validate 仅做厂商解析与 crew 查找，不触发执行。
// 异步提交用它在创建作业之前拒绝非法请求。
func (r *Runner) Validate(name string, meta *llm.Meta) error {
	if _, err := llm.Resolve(meta, r.defaults); err != nil {
		return err
	}
	_, err := r.registry.Lookup(name)
	return err
}

// Names 返回已注册的 crew 名称。
func (r *Runner) Names() []string {
	return r.registry.Names()
}
