package handlers

import (
	"context"

	"video-mastermind/internal/services"
)

// Analyzer 定義了 HTTP 層需要的分析操作，由 services.AnalyzeService 實作。
type Analyzer interface {
	AnalyzeBytes(ctx context.Context, name, mimeType string, data []byte, prompt, model string) (*services.Report, error)
	NormalizeText(raw string) (*services.Report, error)
}

// ModelLister 可即時列出供應商上的模型 (目前只有 OpenRouter)。
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
