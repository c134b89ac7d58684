package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/config"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

// ErrEmptyResponse 表示 API 没有返回任何候选内容
var ErrEmptyResponse = errors.New("gemini: empty response")

// Client 是 Gemini API 客户端
type Client struct {
	apiKey     string
	apiUrl     string
	model      string
	httpClient *http.Client
	retryDelay time.Duration
}

// GeminiRequest Gemini API 请求结构
type GeminiRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
}

// Content 内容结构
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part 内容片段
type Part struct {
	Text string `json:"text"`
}

// GeminiResponse Gemini API 响应结构
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback"`
}

// getProxy 获取代理配置
func getProxy(cfg *config.Config) func(*http.Request) (*url.URL, error) {
	// 检查配置中是否有明确的代理设置
	proxyURL := cfg.GetGeminiProxyURL()
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			logger.Warn("无效的代理URL配置，将使用系统代理",
				zap.String("proxy_url", proxyURL),
				zap.Error(err))
			return http.ProxyFromEnvironment
		}
		logger.Info("使用配置的Gemini API代理",
			zap.String("proxy_url", proxyURL))
		return http.ProxyURL(proxy)
	}

	// 否则使用系统环境变量中的代理
	return http.ProxyFromEnvironment
}

// NewClient 创建一个新的 Gemini 客户端
func NewClient(cfg *config.Config) *Client {
	transport := &http.Transport{
		Proxy: getProxy(cfg),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second, // 生成整个项目耗时较长
	}

	return &Client{
		apiKey: cfg.GetGeminiAPIKey(),
		apiUrl: fmt.Sprintf("%s/%s:generateContent", cfg.GetGeminiApiEndpoint(), cfg.GetGeminiModel()),
		model:  cfg.GetGeminiModel(),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   180 * time.Second,
		},
		retryDelay: 2 * time.Second,
	}
}

// Name 返回服务商名称
func (c *Client) Name() string {
	return "gemini"
}

// buildRequest 把对话转换为 Gemini 的 contents，assistant 对应 model 角色
func buildRequest(system string, messages []models.ChatMessage) GeminiRequest {
	req := GeminiRequest{Contents: make([]Content, 0, len(messages))}
	if system != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	for _, msg := range messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, Content{Role: role, Parts: []Part{{Text: msg.Content}}})
	}
	return req
}

// Chat 发送多轮对话到 Gemini API 并返回完整回复
func (c *Client) Chat(ctx context.Context, system string, messages []models.ChatMessage) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("Gemini API 密钥未配置")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("对话内容为空")
	}

	logger.Debug("准备发送对话到 Gemini API",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)))

	reqJSON, err := json.Marshal(buildRequest(system, messages))
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	// 添加重试逻辑
	var lastErr error
	maxRetries := 3
	retryDelay := c.retryDelay

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logger.Info("重试 Gemini API 请求",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
			// 指数退避策略
			retryDelay *= 2
		}

		response, retry, err := c.send(ctx, reqJSON)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return "", err
		}
		logger.Warn("Gemini API 请求失败, 将重试",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries))
	}

	return "", fmt.Errorf("Gemini API 请求失败，已达到最大重试次数: %w", lastErr)
}

// send 发送一次请求，返回值 retry 表示该错误是否值得重试
func (c *Client) send(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiUrl, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("创建请求失败: %w", err)
	}

	q := req.URL.Query()
	q.Add("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 处理非 2xx 响应，只有服务器错误(5xx)才重试
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", resp.StatusCode >= 500, fmt.Errorf("API 返回错误: %s: %s", resp.Status, string(bodyBytes))
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", true, fmt.Errorf("解析响应失败: %w", err)
	}

	// 检查是否被阻止
	if geminiResp.PromptFeedback.BlockReason != "" {
		return "", false, fmt.Errorf("提示词被阻止: %s", geminiResp.PromptFeedback.BlockReason)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", false, ErrEmptyResponse
	}

	// 一个候选可能被拆成多个片段
	var text bytes.Buffer
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	logger.Debug("从 Gemini 收到响应",
		zap.Int("response_length", text.Len()),
		zap.String("finish_reason", geminiResp.Candidates[0].FinishReason))

	return text.String(), false, nil
}
