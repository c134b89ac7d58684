package handlers

import (
	"context"
	"net/http"

	"hyperbuild-web/internal/application"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/pkg/logger"
	"hyperbuild-web/pkg/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BuildBackend 会话相关处理器依赖的构建服务
type BuildBackend interface {
	Create(ctx context.Context, prompt, provider string) (*application.SessionSnapshot, error)
	SendMessage(ctx context.Context, id, content string) (*application.SessionSnapshot, error)
	Get(id string) (*application.SessionSnapshot, error)
	Tree(id string) (string, error)
	MountTree(id string) (services.MountTree, error)
	ReadFile(id, path string) (string, error)
	EditFile(ctx context.Context, id, path, content string) error
	Import(ctx context.Context, id, repoURL, token string) (*application.SessionSnapshot, error)
	StartPreview(id string, reload bool) (bool, application.PreviewStatus, error)
	Delete(id string) error
}

// SessionHandler 构建会话 HTTP 处理器
type SessionHandler struct {
	builds BuildBackend
}

// NewSessionHandler 创建会话处理器实例
func NewSessionHandler(builds BuildBackend) *SessionHandler {
	return &SessionHandler{builds: builds}
}

// HandleCreate 新建会话
func (h *SessionHandler) HandleCreate(c *gin.Context) {
	var request types.CreateSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.builds.Create(c.Request.Context(), request.Prompt, request.Provider)
	if err != nil {
		respondError(c, err, "创建会话失败")
		return
	}

	logger.Info("会话已创建",
		zap.String("request_id", c.GetString("RequestID")),
		zap.String("session_id", snap.ID))
	c.JSON(http.StatusCreated, snap)
}

// HandleGet 返回会话快照
func (h *SessionHandler) HandleGet(c *gin.Context) {
	snap, err := h.builds.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "读取会话失败")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// HandleMessage 追加一轮对话
func (h *SessionHandler) HandleMessage(c *gin.Context) {
	var request types.MessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	snap, err := h.builds.SendMessage(c.Request.Context(), c.Param("id"), request.Content)
	if err != nil {
		respondError(c, err, "对话服务调用失败")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// HandlePreview 启动预览，reload=true 时强制重启
func (h *SessionHandler) HandlePreview(c *gin.Context) {
	reload := c.DefaultQuery("reload", "false") == "true"

	started, status, err := h.builds.StartPreview(c.Param("id"), reload)
	if err != nil {
		respondError(c, err, "启动预览失败")
		return
	}

	code := http.StatusOK
	if started {
		code = http.StatusAccepted
	}
	c.JSON(code, gin.H{"started": started, "status": status})
}

// HandleDelete 结束会话
func (h *SessionHandler) HandleDelete(c *gin.Context) {
	if err := h.builds.Delete(c.Param("id")); err != nil {
		respondError(c, err, "删除会话失败")
		return
	}
	c.Status(http.StatusNoContent)
}
