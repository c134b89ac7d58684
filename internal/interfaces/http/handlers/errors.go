package handlers

import (
	"errors"
	"net/http"

	"hyperbuild-web/internal/application"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError 把领域错误映射为 HTTP 状态码，fallback 为未识别错误时的提示
func respondError(c *gin.Context, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, application.ErrSessionNotFound):
		status, message = http.StatusNotFound, "会话不存在或已过期"
	case errors.Is(err, application.ErrUnknownProvider):
		status, message = http.StatusNotFound, "未知的服务商"
	case errors.Is(err, services.ErrUnknownTemplate):
		status, message = http.StatusForbidden, "无法识别的项目类型"
	case errors.Is(err, services.ErrInvalidPath):
		status, message = http.StatusBadRequest, "无效的文件路径"
	case errors.Is(err, services.ErrPathConflict):
		status, message = http.StatusConflict, "路径与已有文件或目录冲突"
	case errors.Is(err, services.ErrFileNotFound):
		status, message = http.StatusNotFound, "文件不存在"
	}

	fields := []zap.Field{
		zap.String("request_id", c.GetString("RequestID")),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
	} else {
		logger.Warn(message, fields...)
	}

	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数", "details": err.Error()})
}
