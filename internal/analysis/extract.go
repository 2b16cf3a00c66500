// Package analysis 將模型的原始文字回應轉為驗證過的 AnalysisResult。
//
// 流程分兩段：ExtractJSON 去除 markdown 圍欄並解析 JSON，失敗時回傳
// *ParseFailure 信封；CoerceAndValidate 修復已知的欄位形狀偏差後建立報告。
// 兩者皆為純函式，可同時由多個呼叫端使用。
package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/kaptinlin/jsonrepair"
)

const fence = "```"

var (
	errEmptyInput   = errors.New("empty input")
	errTrailingData = errors.New("unexpected data after top-level JSON value")
)

type extractConfig struct {
	repair bool
}

// ExtractOption 調整 ExtractJSON 的行為。
type ExtractOption func(*extractConfig)

// WithJSONRepair 在嚴格解析失敗後，先以 jsonrepair 修補再試一次。
func WithJSONRepair() ExtractOption {
	return func(c *extractConfig) { c.repair = true }
}

// ExtractJSON 解析模型的原始文字回應。
// 成功時回傳解析後的值 (物件、陣列或純量，數字為 json.Number)；
// 失敗時回傳 *ParseFailure，其中 Raw 為去除圍欄後的文字。此函式不會 panic。
func ExtractJSON(raw string, opts ...ExtractOption) any {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	text := StripFences(raw)
	value, err := decodeStrict(text)
	if err == nil {
		return value
	}

	if cfg.repair {
		if repaired, repairErr := jsonrepair.JSONRepair(text); repairErr == nil {
			if value, retryErr := decodeStrict(repaired); retryErr == nil {
				return value
			}
		}
	}

	return &ParseFailure{Marker: ParseFailureMarker, Raw: text, Cause: err}
}

// StripFences 去除前後空白，以及位於文字最開頭的 ``` 圍欄行與最末端的 ``` 圍欄。
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, fence) {
		return text
	}
	if nl := strings.Index(text, "\n"); nl != -1 {
		text = text[nl+1:]
	}
	if trimmed := strings.TrimRightFunc(text, unicode.IsSpace); strings.HasSuffix(trimmed, fence) {
		text = trimmed[:len(trimmed)-len(fence)]
	}
	return text
}

func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyInput
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return value, nil
}
