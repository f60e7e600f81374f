package crew

import (
	"fmt"
	"strings"

	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

// InputSpec 声明 crew 运行时需要的输入字段。
type InputSpec struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
}

// AgentSpec 以声明方式描述一个 agent 的角色设定。
// Provider 为空时使用请求解析出的厂商；research 类 agent 可固定到 perplexity。
type AgentSpec struct {
	Name      string       `yaml:"name"`
	Role      string       `yaml:"role"`
	Goal      string       `yaml:"goal"`
	Backstory string       `yaml:"backstory"`
	Provider  llm.Provider `yaml:"provider"`
}

// TaskSpec 描述一个按顺序执行的任务。Context 引用前序任务的输出。
type TaskSpec struct {
	Name           string   `yaml:"name"`
	Agent          string   `yaml:"agent"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Context        []string `yaml:"context"`
}

// Definition 是一个完整的 crew 工作流定义，启动后只读。
type Definition struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Inputs      []InputSpec `yaml:"inputs"`
	Agents      []AgentSpec `yaml:"agents"`
	Tasks       []TaskSpec  `yaml:"tasks"`
}

// Result 汇总一次 crew 执行的结构化输出。
type Result struct {
	Workflow     string            `json:"workflow"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	Output       string            `json:"output"`
	InputSummary map[string]string `json:"input_summary"`
}

var (
	// ErrCrewNotFound 表示指定的 crew 未注册。
	ErrCrewNotFound = xerrors.New(CodeCrewNotFound, "crew not found")
)

const (
	CodeCrewNotFound xerrors.Code = "CREW_NOT_FOUND"
	CodeCrewInvalid  xerrors.Code = "CREW_DEFINITION_INVALID"
)

func init() {
	xerrors.Register(CodeCrewNotFound, xerrors.Attributes{
		Message:   "crew not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeCrewInvalid, xerrors.Attributes{
		Message:   "crew definition invalid",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// Validate 检查定义是否自洽：agent 引用存在、context 只引用前序任务。
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return xerrors.New(CodeCrewInvalid, "crew 名称不能为空")
	}
	if len(d.Agents) == 0 {
		return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 未声明任何 agent", d.Name))
	}
	if len(d.Tasks) == 0 {
		return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 未声明任何任务", d.Name))
	}

	agents := make(map[string]struct{}, len(d.Agents))
	for _, agent := range d.Agents {
		if strings.TrimSpace(agent.Name) == "" {
			return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 存在未命名的 agent", d.Name))
		}
		if _, ok := agents[agent.Name]; ok {
			return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中 agent %s 重复", d.Name, agent.Name))
		}
		if agent.Provider != "" {
			if _, err := llm.ParseProvider(string(agent.Provider)); err != nil {
				return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中 agent %s 绑定了未知厂商 %s", d.Name, agent.Name, agent.Provider))
			}
		}
		agents[agent.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(d.Tasks))
	for _, task := range d.Tasks {
		if strings.TrimSpace(task.Name) == "" {
			return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 存在未命名的任务", d.Name))
		}
		if _, ok := seen[task.Name]; ok {
			return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中任务 %s 重复", d.Name, task.Name))
		}
		if _, ok := agents[task.Agent]; !ok {
			return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中任务 %s 引用了未知 agent %s", d.Name, task.Name, task.Agent))
		}
		for _, ref := range task.Context {
			if _, ok := seen[ref]; !ok {
				return xerrors.New(CodeCrewInvalid, fmt.Sprintf("crew %s 中任务 %s 引用了未执行的前序任务 %s", d.Name, task.Name, ref))
			}
		}
		seen[task.Name] = struct{}{}
	}
	return nil
}

// agentByName 返回指定名称的 agent 定义。
func (d *Definition) agentByName(name string) (AgentSpec, bool) {
	for _, agent := range d.Agents {
		if agent.Name == name {
			return agent, true
		}
	}
	return AgentSpec{}, false
}

// resolveInputs 校验必填字段并填充默认值，返回用于模板渲染的变量表。
func (d *Definition) resolveInputs(input map[string]any) (map[string]string, error) {
	vars := make(map[string]string, len(d.Inputs))
	for _, spec := range d.Inputs {
		raw, ok := input[spec.Name]
		if !ok || raw == nil {
			if spec.Required {
				return nil, xerrors.New(xerrors.CodeValidation, fmt.Sprintf("输入缺少必填字段 %s", spec.Name))
			}
			vars[spec.Name] = spec.Default
			continue
		}
		vars[spec.Name] = stringify(raw)
	}
	return vars, nil
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// render 将模板中的 {field} 占位符替换为输入值。
func render(template string, vars map[string]string) string {
	result := template
	for name, value := range vars {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result
}
