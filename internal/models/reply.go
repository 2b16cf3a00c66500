package models

import "encoding/json"

// VideoRequest 是送往模型的一次影片分析請求。Model 為空時使用 client 的預設模型。
type VideoRequest struct {
	Name     string
	MIMEType string
	Data     []byte
	Prompt   string
	Model    string
}

// Usage 模型回報的用量。Cost 僅 OpenRouter 提供 (美元)。
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// ModelReply 是模型的原始回應。Text 為模型輸出的文字，尚未解析。
type ModelReply struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Text     string          `json:"text"`
	Usage    Usage           `json:"usage"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
