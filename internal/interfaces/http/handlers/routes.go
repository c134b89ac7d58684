package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(r gin.IRouter, prompts *PromptHandler, sessions *SessionHandler, files *FileHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/template", prompts.HandleTemplate)
	r.POST("/chat/:provider", prompts.HandleChat)

	api := r.Group("/api")
	api.GET("/responses", prompts.HandleListResponses)

	sessionGroup := api.Group("/sessions")
	sessionGroup.POST("", sessions.HandleCreate)
	sessionGroup.GET("/:id", sessions.HandleGet)
	sessionGroup.DELETE("/:id", sessions.HandleDelete)
	sessionGroup.POST("/:id/messages", sessions.HandleMessage)
	sessionGroup.POST("/:id/preview", sessions.HandlePreview)

	sessionGroup.GET("/:id/tree", files.HandleTree)
	sessionGroup.GET("/:id/mount", files.HandleMount)
	sessionGroup.GET("/:id/files", files.HandleReadFile)
	sessionGroup.PUT("/:id/files", files.HandleWriteFile)
	sessionGroup.POST("/:id/import", files.HandleImport)
}
