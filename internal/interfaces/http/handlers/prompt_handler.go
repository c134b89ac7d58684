package handlers

import (
	"context"
	"net/http"
	"strconv"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/logger"
	"hyperbuild-web/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultResponsesLimit = 20

// ChatBackend 提示词与对话处理器依赖的应用服务
type ChatBackend interface {
	ClassifyTemplate(ctx context.Context, prompt string) (models.TemplateLabel, models.PromptBundle, error)
	Chat(ctx context.Context, provider string, messages []models.ChatMessage) (string, error)
	RecentResponses(ctx context.Context, limit int) ([]models.ArchivedResponse, error)
}

// PromptHandler 模板分类与对话 HTTP 处理器
type PromptHandler struct {
	chat ChatBackend
}

// NewPromptHandler 创建提示词 HTTP 处理器实例
func NewPromptHandler(chat ChatBackend) *PromptHandler {
	return &PromptHandler{chat: chat}
}

// HandleTemplate 判断项目原型并返回初始提示词
func (h *PromptHandler) HandleTemplate(c *gin.Context) {
	var request types.TemplateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	label, bundle, err := h.chat.ClassifyTemplate(c.Request.Context(), request.Prompt)
	if err != nil {
		respondError(c, err, "模板分类失败")
		return
	}

	logger.Info("模板分类完成",
		zap.String("request_id", c.GetString("RequestID")),
		zap.String("label", string(label)))
	c.JSON(http.StatusOK, types.TemplateResponse{Prompts: bundle.Prompts, UIPrompts: bundle.UIPrompts})
}

// HandleChat 转发多轮对话到指定服务商
func (h *PromptHandler) HandleChat(c *gin.Context) {
	var request types.ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	response, err := h.chat.Chat(c.Request.Context(), c.Param("provider"), request.Messages)
	if err != nil {
		respondError(c, err, "对话服务调用失败")
		return
	}

	c.JSON(http.StatusOK, types.ChatResponse{Response: response})
}

// HandleListResponses 列出最近归档的回复
func (h *PromptHandler) HandleListResponses(c *gin.Context) {
	limit := defaultResponsesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为正整数"})
			return
		}
		limit = n
	}

	records, err := h.chat.RecentResponses(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "读取归档失败")
		return
	}
	c.JSON(http.StatusOK, types.ResponsesResponse{Responses: records})
}
