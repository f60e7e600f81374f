package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AI-Agency/internal/api"
	"AI-Agency/internal/config"
	"AI-Agency/internal/crew"
	"AI-Agency/internal/job"
	"AI-Agency/internal/llm"
	"AI-Agency/internal/llm/anthropic"
	"AI-Agency/internal/llm/deepseek"
	"AI-Agency/internal/llm/gemini"
	"AI-Agency/internal/llm/perplexity"
	"AI-Agency/internal/observability/alerting"
	"AI-Agency/internal/observability/metrics"
	"AI-Agency/pkg/logger"
)

// main 是 crew 网关守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agencyd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENCY_CONFIG")
	if configPath == "" {
		defaultPath := filepath.Join("configs", "agency.json")
		if _, err := os.Stat(defaultPath); err == nil {
			configPath = defaultPath
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditPath != "",
			Path:    cfg.Log.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	defaultProvider, err := llm.ParseProvider(cfg.LLM.DefaultProvider)
	if err != nil {
		return err
	}
	defaults := llm.Defaults{
		Provider: defaultProvider,
		Models: map[llm.Provider]string{
			llm.ProviderAnthropic:  cfg.LLM.Anthropic.Model,
			llm.ProviderGoogle:     cfg.LLM.Google.Model,
			llm.ProviderDeepSeek:   cfg.LLM.DeepSeek.Model,
			llm.ProviderPerplexity: cfg.LLM.Perplexity.Model,
		},
	}

	// 注册表由内置 crew 与可选的外部定义文件共同组成。
	definitions := crew.BuiltinDefinitions()
	if cfg.Crews.DefinitionsPath != "" {
		loaded, err := crew.LoadDefinitions(cfg.Crews.DefinitionsPath)
		if err != nil {
			return err
		}
		definitions = append(definitions, loaded...)
	}
	registry, err := crew.NewRegistry(definitions...)
	if err != nil {
		return err
	}

	callTimeout := time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second
	executor, err := crew.NewExecutor(newClientFactory(cfg, callTimeout), defaults, callTimeout)
	if err != nil {
		return err
	}
	runner, err := crew.NewRunner(registry, executor, defaults)
	if err != nil {
		return err
	}

	var store job.Store
	switch cfg.Jobs.Store.Driver {
	case "", "memory":
		store = job.NewMemoryStore()
	case "mysql":
		mysqlStore, err := job.NewMySQLStore(cfg.Jobs.Store.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的作业存储驱动: %s", cfg.Jobs.Store.Driver)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("关闭作业存储失败: %v", err)
		}
	}()

	var queue job.Queue
	switch cfg.Jobs.Queue.Driver {
	case "", "memory":
		queue = job.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := job.NewRedisQueue(job.RedisQueueConfig{
			Address:   cfg.Jobs.Queue.Redis.Address,
			Password:  cfg.Jobs.Queue.Redis.Password,
			DB:        cfg.Jobs.Queue.Redis.DB,
			Queue:     cfg.Jobs.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Jobs.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.Jobs.Queue.RabbitMQ.URL,
			Queue:      cfg.Jobs.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Jobs.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Jobs.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Jobs.Queue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Jobs.Queue.Driver)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Printf("关闭作业队列失败: %v", err)
		}
	}()

	jobs := job.NewService(store, queue, cfg.Jobs.MaxRetries)

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL))
	}

	processor := job.NewProcessor(runner, store, queue, queue,
		job.WithWorkerCount(cfg.Jobs.Queue.Workers),
		job.WithProcessorLogger(logger.L()),
		job.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	go func() {
		if err := processor.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("作业处理器异常退出: %v", err)
		}
	}()

	janitor, err := job.NewJanitor(store,
		time.Duration(cfg.Jobs.TTLSeconds)*time.Second,
		time.Duration(cfg.Jobs.SweepIntervalSeconds)*time.Second,
	)
	if err != nil {
		return err
	}
	go func() {
		if err := janitor.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("作业清理协程异常退出: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(workerCtx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, cfg.Auth.APIKey(), runner, jobs)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newClientFactory 按解析后的厂商配置创建对应客户端。
// 模型优先使用请求解析结果，厂商密钥与地址来自进程配置。
func newClientFactory(cfg *config.Config, timeout time.Duration) llm.Factory {
	return func(resolved llm.ProviderConfig) (llm.Client, error) {
		switch resolved.Provider {
		case llm.ProviderAnthropic:
			return anthropic.NewClient(anthropic.Config{
				APIKey:  cfg.LLM.Anthropic.APIKey(),
				BaseURL: cfg.LLM.Anthropic.BaseURL,
				Model:   resolved.Model,
				Timeout: timeout,
			})
		case llm.ProviderGoogle:
			return gemini.NewClient(gemini.Config{
				APIKey:  cfg.LLM.Google.APIKey(),
				BaseURL: cfg.LLM.Google.BaseURL,
				Model:   resolved.Model,
				Timeout: timeout,
			})
		case llm.ProviderDeepSeek:
			return deepseek.NewClient(deepseek.Config{
				APIKey:  cfg.LLM.DeepSeek.APIKey(),
				BaseURL: cfg.LLM.DeepSeek.BaseURL,
				Model:   resolved.Model,
				Timeout: timeout,
			})
		case llm.ProviderPerplexity:
			return perplexity.NewClient(perplexity.Config{
				APIKey:  cfg.LLM.Perplexity.APIKey(),
				BaseURL: cfg.LLM.Perplexity.BaseURL,
				Model:   resolved.Model,
				Timeout: timeout,
			})
		default:
			return nil, fmt.Errorf("未知的大模型 provider: %s", resolved.Provider)
		}
	}
}
