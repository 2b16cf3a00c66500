package analysis

import (
	"errors"

	"video-mastermind/internal/models"
)

// Outcome 分類一次正規化的結果，供 CLI 結束碼與 HTTP 狀態碼使用。
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeParseFailure  Outcome = "parse_failure"
	OutcomeSchemaFailure Outcome = "schema_failure"
)

// Normalized 保存擷取與驗證兩段的結果。
type Normalized struct {
	Parsed any
	Result *models.AnalysisResult
	Err    error
}

// Normalize 依序執行 ExtractJSON 與 CoerceAndValidate。
func Normalize(raw string, opts ...ExtractOption) Normalized {
	parsed := ExtractJSON(raw, opts...)
	result, err := CoerceAndValidate(parsed)
	return Normalized{Parsed: parsed, Result: result, Err: err}
}

// ParseFailure 在擷取失敗時回傳錯誤信封。
func (n Normalized) ParseFailure() (*ParseFailure, bool) {
	return AsParseFailure(n.Parsed)
}

// SchemaError 在驗證失敗時回傳 *SchemaError。
func (n Normalized) SchemaError() (*SchemaError, bool) {
	var schemaErr *SchemaError
	if errors.As(n.Err, &schemaErr) {
		return schemaErr, true
	}
	return nil, false
}

func (n Normalized) Outcome() Outcome {
	if _, ok := n.ParseFailure(); ok {
		return OutcomeParseFailure
	}
	if n.Err != nil {
		return OutcomeSchemaFailure
	}
	return OutcomeOK
}
