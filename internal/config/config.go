package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config 描述网关启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Auth     AuthConfig     `json:"auth"`
	LLM      LLMConfig      `json:"llm"`
	Jobs     JobsConfig     `json:"jobs"`
	Crews    CrewsConfig    `json:"crews"`
	Log      LogConfig      `json:"log"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// AuthConfig 描述 API Key 鉴权方式。密钥本身只从环境变量读取。
type AuthConfig struct {
	APIKeyEnv string `json:"api_key_env"`
	apiKey    string
}

// APIKey 返回解析后的 API Key。
func (a AuthConfig) APIKey() string { return a.apiKey }

// ProviderSettings 描述单个大模型厂商的调用参数。
type ProviderSettings struct {
	APIKeyEnv string `json:"api_key_env"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	apiKey    string
}

// APIKey 返回解析后的厂商密钥。
func (p ProviderSettings) APIKey() string { return p.apiKey }

// LLMConfig 汇总所有厂商配置与进程级默认值。
type LLMConfig struct {
	DefaultProvider       string           `json:"default_provider"`
	RequestTimeoutSeconds int              `json:"request_timeout_seconds"`
	Anthropic             ProviderSettings `json:"anthropic"`
	Google                ProviderSettings `json:"google"`
	DeepSeek              ProviderSettings `json:"deepseek"`
	Perplexity            ProviderSettings `json:"perplexity"`
}

// JobsConfig 控制异步任务的存储、派发与清理。
type JobsConfig struct {
	Store                JobStoreConfig `json:"store"`
	Queue                QueueConfig    `json:"queue"`
	MaxRetries           int            `json:"max_retries"`
	TTLSeconds           int            `json:"ttl_seconds"`
	SweepIntervalSeconds int            `json:"sweep_interval_seconds"`
}

// JobStoreConfig 目前支持 memory 与 mysql 两种驱动。
type JobStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述任务派发队列。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// CrewsConfig 指定额外的 crew 定义文件。
type CrewsConfig struct {
	DefinitionsPath string `json:"definitions_path"`
}

// LogConfig 控制日志输出。
type LogConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// AlertingConfig 控制失败任务的告警推送。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Load 解析指定路径的 JSON 配置文件，并从环境变量补齐密钥。
// 配置路径为空时只使用默认值与环境变量，方便本地快速启动。
func Load(path string) (*Config, error) {
	// .env 文件是可选的，密钥也可能直接来自进程环境。
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.resolveSecrets()

	if cfg.Auth.apiKey == "" {
		return nil, errors.New("API Key 未配置，请设置 " + cfg.Auth.APIKeyEnv)
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Auth.APIKeyEnv == "" {
		c.Auth.APIKeyEnv = "AGENCY_API_KEY"
	}

	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "deepseek"
	}
	if c.LLM.RequestTimeoutSeconds <= 0 {
		c.LLM.RequestTimeoutSeconds = 90
	}
	applyProviderDefaults(&c.LLM.Anthropic, "ANTHROPIC_API_KEY", "claude-3-5-sonnet-20240620")
	applyProviderDefaults(&c.LLM.Google, "GOOGLE_API_KEY", "gemini-2.0-flash")
	applyProviderDefaults(&c.LLM.DeepSeek, "DEEPSEEK_API_KEY", "deepseek-chat")
	applyProviderDefaults(&c.LLM.Perplexity, "PERPLEXITY_API_KEY", "sonar-pro")

	if c.Jobs.Store.Driver == "" {
		c.Jobs.Store.Driver = "memory"
	}
	if c.Jobs.Queue.Driver == "" {
		c.Jobs.Queue.Driver = "memory"
	}
	if c.Jobs.Queue.Workers <= 0 {
		c.Jobs.Queue.Workers = 4
	}
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = 2
	}
	if c.Jobs.TTLSeconds <= 0 {
		c.Jobs.TTLSeconds = 3600
	}
	if c.Jobs.SweepIntervalSeconds <= 0 {
		c.Jobs.SweepIntervalSeconds = 300
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func applyProviderDefaults(settings *ProviderSettings, keyEnv, model string) {
	if settings.APIKeyEnv == "" {
		settings.APIKeyEnv = keyEnv
	}
	if settings.Model == "" {
		settings.Model = model
	}
}

// resolveSecrets 从环境变量读取各类密钥。
func (c *Config) resolveSecrets() {
	c.Auth.apiKey = strings.TrimSpace(os.Getenv(c.Auth.APIKeyEnv))
	c.LLM.Anthropic.apiKey = strings.TrimSpace(os.Getenv(c.LLM.Anthropic.APIKeyEnv))
	c.LLM.Google.apiKey = strings.TrimSpace(os.Getenv(c.LLM.Google.APIKeyEnv))
	c.LLM.DeepSeek.apiKey = strings.TrimSpace(os.Getenv(c.LLM.DeepSeek.APIKeyEnv))
	c.LLM.Perplexity.apiKey = strings.TrimSpace(os.Getenv(c.LLM.Perplexity.APIKeyEnv))
}
