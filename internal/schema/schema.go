// Package schema 提供 AnalysisResult 的版本化 JSON Schema。
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// Version 是目前報告結構的版本，與 $id 中的版本一致。
const Version = "v1"

//go:embed analysis_result.v1.json
var analysisResultV1 []byte

// JSON 回傳內嵌的 schema 原文。
func JSON() []byte {
	out := make([]byte, len(analysisResultV1))
	copy(out, analysisResultV1)
	return out
}

// Document 是解析後的 schema，只保留檢查欄位所需的部分。
type Document struct {
	ID         string               `json:"$id"`
	Title      string               `json:"title"`
	Type       any                  `json:"type"`
	Properties map[string]*Document `json:"properties"`
	Items      *Document            `json:"items"`
	Required   []string             `json:"required"`
}

// Parse 解析內嵌的 schema。
func Parse() (*Document, error) {
	var doc Document
	if err := json.Unmarshal(analysisResultV1, &doc); err != nil {
		return nil, fmt.Errorf("解析內嵌 schema 失敗: %w", err)
	}
	return &doc, nil
}
