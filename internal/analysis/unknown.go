package analysis

import (
	"reflect"
	"sort"
	"strings"

	levenshtein "github.com/texttheater/golang-levenshtein/levenshtein"

	"video-mastermind/internal/models"
)

// UnknownField 是模型輸出中報告結構以外的欄位。Suggestion 為拼字最接近的已知欄位 (可能為空)。
type UnknownField struct {
	Path       string `json:"path"`
	Suggestion string `json:"suggestion,omitempty"`
}

// maxSuggestionDistance 以上的編輯距離不提供建議。
const maxSuggestionDistance = 3

var distanceOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

var reportType = reflect.TypeOf(models.AnalysisResult{})

// UnknownFields 列出 value 中不屬於報告結構的欄位，供記錄使用。
// CoerceAndValidate 會忽略這些欄位；這裡只負責診斷。
func UnknownFields(value any) []UnknownField {
	root, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	var out []UnknownField
	walkUnknown(reportType, "", root, &out)
	return out
}

func walkUnknown(t reflect.Type, path string, m map[string]any, out *[]UnknownField) {
	known := jsonFields(t)
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fieldType, ok := known[key]
		if !ok {
			*out = append(*out, UnknownField{Path: field(path, key), Suggestion: closestKey(key, known)})
			continue
		}
		childPath := field(path, key)
		switch child := m[key].(type) {
		case map[string]any:
			if st := structOf(fieldType); st != nil {
				walkUnknown(st, childPath, child, out)
			}
		case []any:
			if fieldType.Kind() != reflect.Slice {
				continue
			}
			st := structOf(fieldType.Elem())
			if st == nil {
				continue
			}
			for i, item := range child {
				if obj, ok := item.(map[string]any); ok {
					walkUnknown(st, element(childPath, i), obj, out)
				}
			}
		}
	}
}

// jsonFields 回傳 struct 的 json 欄位名稱與其型別。
func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = f.Type
	}
	return fields
}

func structOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

func closestKey(key string, known map[string]reflect.Type) string {
	best, bestDistance := "", maxSuggestionDistance+1
	candidates := make([]string, 0, len(known))
	for name := range known {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)
	for _, name := range candidates {
		d := levenshtein.DistanceForStrings([]rune(strings.ToLower(key)), []rune(name), distanceOptions)
		if d < bestDistance {
			best, bestDistance = name, d
		}
	}
	return best
}
