package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrUnknownProvider 请求了未注册的服务商
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrEmptyResponse 服务商返回了空回复
	ErrEmptyResponse = errors.New("empty response")
)

// ChatProvider 对话服务商，接收多轮消息并返回一段完整回复
type ChatProvider interface {
	Name() string
	Chat(ctx context.Context, system string, messages []models.ChatMessage) (string, error)
}

// ResponseArchive 回复归档
type ResponseArchive interface {
	Save(ctx context.Context, provider, response string) (*models.ArchivedResponse, error)
	List(ctx context.Context, limit int) ([]models.ArchivedResponse, error)
}

// ChatService 对话应用服务
type ChatService struct {
	providers  map[string]ChatProvider
	classifier string
	prompts    *services.PromptLibrary
	archive    ResponseArchive
}

// NewChatService 创建对话应用服务，archive 可以为 nil
func NewChatService(prompts *services.PromptLibrary, classifier string, archive ResponseArchive, providers ...ChatProvider) *ChatService {
	s := &ChatService{
		providers:  make(map[string]ChatProvider, len(providers)),
		classifier: classifier,
		prompts:    prompts,
		archive:    archive,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

// Providers 返回已注册的服务商名称
func (s *ChatService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProvider 判断服务商是否已注册
func (s *ChatService) HasProvider(name string) bool {
	_, ok := s.providers[name]
	return ok
}

func (s *ChatService) provider(name string) (ChatProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Chat 附带系统提示词调用服务商，成功的回复会写入归档
func (s *ChatService) Chat(ctx context.Context, providerName string, messages []models.ChatMessage) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	logger.Info("调用对话服务商", zap.String("provider", providerName), zap.Int("messages", len(messages)))

	response, err := p.Chat(ctx, s.prompts.SystemPrompt(), messages)
	if err != nil {
		logger.Error("对话服务商调用失败", zap.String("provider", providerName), zap.Error(err))
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("%s: %w", providerName, ErrEmptyResponse)
	}

	s.save(ctx, providerName, response)
	return response, nil
}

// save 归档失败只记录日志，不影响对话结果
func (s *ChatService) save(ctx context.Context, providerName, response string) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(ctx, providerName, response); err != nil {
		logger.Warn("归档回复失败", zap.String("provider", providerName), zap.Error(err))
	}
}

// ClassifyTemplate 让分类服务商判断项目原型并返回对应的初始提示词
func (s *ChatService) ClassifyTemplate(ctx context.Context, prompt string) (models.TemplateLabel, models.PromptBundle, error) {
	p, err := s.provider(s.classifier)
	if err != nil {
		return "", models.PromptBundle{}, err
	}

	answer, err := p.Chat(ctx, "", []models.ChatMessage{
		{Role: models.RoleUser, Content: s.prompts.ClassifierPrompt()},
		{Role: models.RoleUser, Content: prompt},
	})
	if err != nil {
		logger.Error("模板分类失败", zap.String("provider", s.classifier), zap.Error(err))
		return "", models.PromptBundle{}, err
	}

	label, err := s.prompts.ParseLabel(answer)
	if err != nil {
		logger.Warn("分类结果无法识别", zap.String("answer", answer))
		return "", models.PromptBundle{}, err
	}
	logger.Debug("模板分类完成", zap.String("label", string(label)))

	bundle, err := s.prompts.Bundle(label)
	return label, bundle, err
}

// RecentResponses 返回最近归档的回复，未启用归档时返回空列表
func (s *ChatService) RecentResponses(ctx context.Context, limit int) ([]models.ArchivedResponse, error) {
	if s.archive == nil {
		return []models.ArchivedResponse{}, nil
	}
	return s.archive.List(ctx, limit)
}
