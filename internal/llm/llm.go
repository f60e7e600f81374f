package llm

import "context"

// Request 描述一次发送给大模型的推理请求。
type Request struct {
	System string
	Prompt string
}

// Response 是大模型推理得到的输出。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Factory 根据解析后的厂商配置构建对应的客户端。
type Factory func(cfg ProviderConfig) (Client, error)
