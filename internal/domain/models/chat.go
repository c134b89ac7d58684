package models

import "time"

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 对话中的一轮消息
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// TemplateLabel 项目原型分类结果
type TemplateLabel string

const (
	TemplateNode  TemplateLabel = "node"
	TemplateReact TemplateLabel = "react"
)

// PromptBundle 根据项目原型选出的初始提示词
type PromptBundle struct {
	Prompts   []string `json:"prompts"`   // 发送给大模型的前置用户消息
	UIPrompts []string `json:"uiPrompts"` // 用于预先解析出初始步骤的模板回复
}

// ArchivedResponse 归档的一条大模型回复
type ArchivedResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}
