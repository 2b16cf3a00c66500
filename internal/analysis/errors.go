package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// ParseFailureMarker 是錯誤信封中 "error" 欄位的固定值。
const ParseFailureMarker = "Invalid JSON output"

// ErrSchemaValidation 可用 errors.Is 判斷任何 *SchemaError。
var ErrSchemaValidation = errors.New("schema validation failed")

// ParseFailure 是擷取器在模型輸出不是合法 JSON 時回傳的錯誤信封。
// 它是資料而非控制流程：JSON 序列化後為 {"error": ..., "raw": ...}。
type ParseFailure struct {
	Marker string `json:"error"`
	Raw    string `json:"raw"`
	Cause  error  `json:"-"`
}

func (f *ParseFailure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", f.Marker, f.Cause)
	}
	return f.Marker
}

func (f *ParseFailure) Unwrap() error {
	return f.Cause
}

// AsParseFailure 辨識錯誤信封，包含 *ParseFailure 本身以及重新解析後的 map 形式。
func AsParseFailure(v any) (*ParseFailure, bool) {
	switch t := v.(type) {
	case *ParseFailure:
		return t, t != nil
	case map[string]any:
		marker, okMarker := t["error"].(string)
		raw, okRaw := t["raw"].(string)
		if okMarker && okRaw && len(t) == 2 {
			return &ParseFailure{Marker: marker, Raw: raw}, true
		}
	}
	return nil, false
}

// Issue 描述一個無法修復的欄位。
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (i Issue) String() string {
	if i.Value == nil {
		return fmt.Sprintf("%s: %s", i.Path, i.Message)
	}
	return fmt.Sprintf("%s: %s (got %s)", i.Path, i.Message, describe(i.Value))
}

// SchemaError 表示輸入值在修復後仍不符合 AnalysisResult 結構。
type SchemaError struct {
	Issues []Issue `json:"issues"`
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("%s: %d issue(s): %s", ErrSchemaValidation.Error(), len(e.Issues), strings.Join(parts, "; "))
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// describe 產生錯誤訊息中用的簡短值描述，過長的字串會被截斷。
func describe(v any) string {
	const maxLen = 80
	var s string
	switch t := v.(type) {
	case string:
		s = fmt.Sprintf("string %q", t)
	case map[string]any:
		s = fmt.Sprintf("object with %d key(s)", len(t))
	case []any:
		s = fmt.Sprintf("array of %d item(s)", len(t))
	default:
		s = fmt.Sprintf("%T %v", v, v)
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
