package llm

import (
	"fmt"
	"strings"

	xerrors "AI-Agency/internal/errors"
)

// Provider 表示受支持的大模型厂商。
type Provider string

const (
	ProviderDefault    Provider = "default"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderPerplexity Provider = "perplexity"
)

// ParseProvider 校验厂商标识是否为受支持的枚举值。
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderDefault:
		return ProviderDefault, nil
	case ProviderAnthropic:
		return ProviderAnthropic, nil
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderDeepSeek:
		return ProviderDeepSeek, nil
	case ProviderPerplexity:
		return ProviderPerplexity, nil
	default:
		return "", xerrors.New(xerrors.CodeValidation, fmt.Sprintf("未知的大模型 provider: %s", raw))
	}
}

// Meta 携带请求级别的厂商与模型覆盖。
type Meta struct {
	LLMProvider string `json:"llm_provider,omitempty"`
	Model       string `json:"model,omitempty"`
}

// ProviderConfig 是解析后的厂商与模型组合，仅在单次请求内有效。
type ProviderConfig struct {
	Provider Provider
	Model    string
}

// Defaults 描述进程级的默认厂商与各厂商默认模型。
type Defaults struct {
	Provider Provider
	Models   map[Provider]string
}

// Resolve 按照 meta 覆盖优先、进程默认值兜底的顺序解析厂商配置。
// meta 为空等价于使用默认配置；无法识别的厂商返回校验错误。
func Resolve(meta *Meta, defaults Defaults) (ProviderConfig, error) {
	provider := defaults.Provider
	model := ""

	if meta != nil {
		if meta.LLMProvider != "" {
			parsed, err := ParseProvider(meta.LLMProvider)
			if err != nil {
				return ProviderConfig{}, err
			}
			if parsed != ProviderDefault {
				provider = parsed
			}
		}
		model = strings.TrimSpace(meta.Model)
	}

	if provider == "" || provider == ProviderDefault {
		return ProviderConfig{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置默认大模型 provider")
	}
	if model == "" {
		model = defaults.Models[provider]
	}
	return ProviderConfig{Provider: provider, Model: model}, nil
}
