package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/config"
	"hyperbuild-web/pkg/logger"

	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyResponse 表示 API 没有返回任何选项
var ErrEmptyResponse = errors.New("openai: empty response")

// Options 描述一个兼容 OpenAI 协议的服务商
type Options struct {
	Name         string
	DefaultModel string
	DefaultURL   string
	MaxTokens    int
	// StripFences 去掉部分模型包裹在整个回复外面的 ``` 代码块标记
	StripFences bool
}

// OpenAIOptions 官方 OpenAI 服务
var OpenAIOptions = Options{
	Name:         "openai",
	DefaultModel: "gpt-4-turbo-preview",
	MaxTokens:    8000,
}

// DeepseekOptions 通过 OpenRouter 托管的 DeepSeek 模型
var DeepseekOptions = Options{
	Name:         "deepseek",
	DefaultModel: "deepseek/deepseek-r1:free",
	DefaultURL:   "https://openrouter.ai/api/v1",
	MaxTokens:    16000,
	StripFences:  true,
}

// Client 兼容 OpenAI 协议的对话客户端
type Client struct {
	api    *sdk.Client
	opts   Options
	model  string
	apiKey string
}

// NewClient 根据服务商配置与协议选项创建客户端
func NewClient(cfg config.ProviderConfig, opts Options) *Client {
	clientCfg := sdk.DefaultConfig(cfg.APIKey)
	switch {
	case cfg.Endpoint != "":
		clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	case opts.DefaultURL != "":
		clientCfg.BaseURL = opts.DefaultURL
	}

	model := cfg.Model
	if model == "" {
		model = opts.DefaultModel
	}
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}

	return &Client{
		api:    sdk.NewClientWithConfig(clientCfg),
		opts:   opts,
		model:  model,
		apiKey: cfg.APIKey,
	}
}

// Name 返回服务商名称
func (c *Client) Name() string {
	return c.opts.Name
}

// Chat 发送多轮对话，系统提示词作为首条 system 消息
func (c *Client) Chat(ctx context.Context, system string, messages []models.ChatMessage) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s API 密钥未配置", c.opts.Name)
	}

	req := sdk.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.opts.MaxTokens,
		Messages:  make([]sdk.ChatCompletionMessage, 0, len(messages)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := sdk.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = sdk.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, sdk.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	logger.Debug("准备发送对话",
		zap.String("provider", c.opts.Name),
		zap.String("model", c.model),
		zap.Int("messages", len(messages)))

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s API 请求失败: %w", c.opts.Name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	text := resp.Choices[0].Message.Content
	if c.opts.StripFences {
		text = StripFences(text)
	}

	logger.Debug("收到响应",
		zap.String("provider", c.opts.Name),
		zap.Int("response_length", len(text)),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return text, nil
}

// StripFences 去掉包裹整个回复的代码块标记，例如 ```tsx ... ```。
// 回复内部的代码块保持不变。
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}

	// 开头一行是 ```lang
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return strings.Trim(trimmed, "`")
	}
	body := trimmed[nl+1:]
	body = strings.TrimRight(body, " \t\r\n")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
