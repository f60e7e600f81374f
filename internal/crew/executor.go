package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
	"AI-Agency/pkg/logger"
)

// Executor 按任务声明顺序驱动一次 crew 执行。
// 每个任务独立调用一次大模型，前序任务的输出通过 Context 注入后续提示词。
type Executor struct {
	factory     llm.Factory
	defaults    llm.Defaults
	callTimeout time.Duration
}

// NewExecutor 创建执行器。factory 负责按厂商配置构建客户端，
// callTimeout 限制单次大模型调用的最长耗时。
func NewExecutor(factory llm.Factory, defaults llm.Defaults, callTimeout time.Duration) (*Executor, error) {
	if factory == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供大模型客户端工厂")
	}
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}
	return &Executor{
		factory:     factory,
		defaults:    defaults,
		callTimeout: callTimeout,
	}, nil
}

// Execute 运行指定的 crew 定义并返回最后一个任务的输出。
// 输入校验失败返回校验错误；大模型调用失败返回执行错误，超时单独标记。
func (e *Executor) Execute(ctx context.Context, def *Definition, input map[string]any, cfg llm.ProviderConfig) (*Result, error) {
	if def == nil {
		return nil, ErrCrewNotFound
	}

	vars, err := def.resolveInputs(input)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("crew", def.Name, "provider", string(cfg.Provider), "model", cfg.Model)

	// 同一次执行内按厂商缓存客户端，避免为每个任务重复建连。
	clients := make(map[llm.Provider]llm.Client, 2)
	clientFor := func(taskCfg llm.ProviderConfig) (llm.Client, error) {
		if client, ok := clients[taskCfg.Provider]; ok {
			return client, nil
		}
		client, err := e.factory(taskCfg)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("构建 %s 客户端失败", taskCfg.Provider))
		}
		clients[taskCfg.Provider] = client
		return client, nil
	}

	outputs := make(map[string]string, len(def.Tasks))
	final := ""
	for _, task := range def.Tasks {
		agent, ok := def.agentByName(task.Agent)
		if !ok {
			return nil, xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中任务 %s 引用了未知 agent %s", def.Name, task.Name, task.Agent))
		}

		taskCfg := cfg
		if agent.Provider != "" && agent.Provider != llm.ProviderDefault {
			// agent 固定厂商时覆盖请求级配置，模型退回该厂商的默认值。
			taskCfg = llm.ProviderConfig{
				Provider: agent.Provider,
				Model:    e.defaults.Models[agent.Provider],
			}
		}

		client, err := clientFor(taskCfg)
		if err != nil {
			return nil, err
		}

		req := llm.Request{
			System: buildSystemPrompt(agent, vars),
			Prompt: buildTaskPrompt(task, vars, outputs),
		}

		started := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		resp, err := client.Generate(callCtx, req)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("crew %s 任务 %s 调用超时", def.Name, task.Name))
			}
			return nil, xerrors.Wrap(xerrors.CodeExecution, err, fmt.Sprintf("crew %s 任务 %s 执行失败", def.Name, task.Name))
		}

		log.Info("crew 任务完成",
			"task", task.Name,
			"agent", agent.Name,
			"task_provider", string(taskCfg.Provider),
			"elapsed", time.Since(started).String(),
		)

		outputs[task.Name] = resp.Text
		final = resp.Text
	}

	return &Result{
		Workflow:     def.Name,
		Provider:     string(cfg.Provider),
		Model:        cfg.Model,
		Output:       final,
		InputSummary: vars,
	}, nil
}

// buildSystemPrompt 将 agent 的角色设定渲染为 system 提示词。
func buildSystemPrompt(agent AgentSpec, vars map[string]string) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(render(agent.Role, vars))
	b.WriteString(".")
	if agent.Backstory != "" {
		b.WriteString(" ")
		b.WriteString(render(agent.Backstory, vars))
	}
	if agent.Goal != "" {
		b.WriteString(" Your goal: ")
		b.WriteString(render(agent.Goal, vars))
	}
	return b.String()
}

// buildTaskPrompt 渲染任务描述，注入前序任务输出并声明期望产出。
func buildTaskPrompt(task TaskSpec, vars map[string]string, outputs map[string]string) string {
	var b strings.Builder
	b.WriteString(render(task.Description, vars))

	for _, ref := range task.Context {
		if prior, ok := outputs[ref]; ok && prior != "" {
			b.WriteString("\n\nOutput from previous task \"")
			b.WriteString(ref)
			b.WriteString("\":\n")
			b.WriteString(prior)
		}
	}

	if task.ExpectedOutput != "" {
		b.WriteString("\n\nExpected output: ")
		b.WriteString(render(task.ExpectedOutput, vars))
	}
	return b.String()
}
