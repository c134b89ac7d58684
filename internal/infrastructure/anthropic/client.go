package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/config"
	"hyperbuild-web/pkg/logger"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 8000
)

// ErrEmptyResponse 表示回复中没有任何文本块
var ErrEmptyResponse = errors.New("anthropic: empty response")

// Client 基于官方 SDK 的 Claude 对话客户端
type Client struct {
	api       sdk.Client
	model     string
	maxTokens int64
	apiKey    string
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.ProviderConfig) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // 服务商失败直接返回给调用方
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		api:       sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		apiKey:    cfg.APIKey,
	}
}

// Name 返回服务商名称
func (c *Client) Name() string {
	return "anthropic"
}

// Chat 发送多轮对话并拼接回复中的全部文本块
func (c *Client) Chat(ctx context.Context, system string, messages []models.ChatMessage) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("Anthropic API 密钥未配置")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(messages)),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	for _, msg := range messages {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == models.RoleAssistant {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	logger.Debug("准备发送对话到 Anthropic API",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)))

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Anthropic API 请求失败: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}

	logger.Debug("从 Anthropic 收到响应",
		zap.Int("response_length", text.Len()),
		zap.String("stop_reason", string(resp.StopReason)))
	return text.String(), nil
}
