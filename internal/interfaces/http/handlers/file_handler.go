package handlers

import (
	"net/http"

	"hyperbuild-web/pkg/logger"
	"hyperbuild-web/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// FileHandler 会话文件树 HTTP 处理器
type FileHandler struct {
	builds BuildBackend
}

// NewFileHandler 创建文件处理器实例
func NewFileHandler(builds BuildBackend) *FileHandler {
	return &FileHandler{builds: builds}
}

// HandleTree 以文本形式返回文件树
func (h *FileHandler) HandleTree(c *gin.Context) {
	tree, err := h.builds.Tree(c.Param("id"))
	if err != nil {
		respondError(c, err, "读取文件树失败")
		return
	}
	c.JSON(http.StatusOK, types.TreeResponse{Tree: tree})
}

// HandleMount 返回挂载描述，format=msgpack 时以二进制返回
func (h *FileHandler) HandleMount(c *gin.Context) {
	mount, err := h.builds.MountTree(c.Param("id"))
	if err != nil {
		respondError(c, err, "读取挂载描述失败")
		return
	}

	if c.DefaultQuery("format", "json") != "msgpack" {
		c.JSON(http.StatusOK, mount)
		return
	}

	data, err := msgpack.Marshal(mount)
	if err != nil {
		respondError(c, err, "msgpack 编码失败")
		return
	}
	c.Data(http.StatusOK, "application/msgpack", data)
}

// HandleReadFile 读取单个文件
func (h *FileHandler) HandleReadFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件路径不能为空"})
		return
	}

	content, err := h.builds.ReadFile(c.Param("id"), path)
	if err != nil {
		respondError(c, err, "读取文件失败")
		return
	}
	c.JSON(http.StatusOK, types.FileResponse{Path: path, Content: content})
}

// HandleWriteFile 编辑器写入文件
func (h *FileHandler) HandleWriteFile(c *gin.Context) {
	var request types.FileWriteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.builds.EditFile(c.Request.Context(), c.Param("id"), request.Path, request.Content); err != nil {
		respondError(c, err, "写入文件失败")
		return
	}

	logger.Debug("编辑器写入文件",
		zap.String("request_id", c.GetString("RequestID")),
		zap.String("path", request.Path),
		zap.Int("size", len(request.Content)))
	c.JSON(http.StatusOK, types.FileResponse{Path: request.Path, Content: request.Content})
}

// HandleImport 从 GitHub 仓库导入文件
func (h *FileHandler) HandleImport(c *gin.Context) {
	var request types.ImportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	logger.Info("处理仓库导入请求",
		zap.String("request_id", c.GetString("RequestID")),
		zap.String("url", request.URL))

	snap, err := h.builds.Import(c.Request.Context(), c.Param("id"), request.URL, request.Token)
	if err != nil {
		respondError(c, err, "导入仓库失败")
		return
	}
	c.JSON(http.StatusOK, snap)
}
