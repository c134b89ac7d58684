package types

import "hyperbuild-web/internal/domain/models"

// TemplateRequest 项目原型分类请求
type TemplateRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// TemplateResponse 分类结果对应的初始提示词
type TemplateResponse struct {
	Prompts   []string `json:"prompts"`
	UIPrompts []string `json:"uiPrompts"`
}

// ChatRequest 多轮对话请求
type ChatRequest struct {
	Messages []models.ChatMessage `json:"messages" binding:"required,dive"`
}

// ChatResponse 大模型回复
type ChatResponse struct {
	Response string `json:"response"`
}

// ResponsesResponse 归档回复列表，按时间倒序
type ResponsesResponse struct {
	Responses []models.ArchivedResponse `json:"responses"`
}

// CreateSessionRequest 新建构建会话
type CreateSessionRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

// MessageRequest 会话中的后续一轮对话
type MessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// FileWriteRequest 编辑器写入，content 允许为空
type FileWriteRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

// FileResponse 单个文件内容
type FileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TreeResponse 文件树的文本形式
type TreeResponse struct {
	Tree string `json:"tree"`
}

// ImportRequest 导入 GitHub 仓库
type ImportRequest struct {
	URL   string `json:"url" binding:"required"`
	Token string `json:"token"`
}
