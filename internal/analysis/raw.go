package analysis

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// 模型輸出中有幾個欄位會以不同形狀出現。每個這類欄位都有一個明確的
// 輸入型別列出所有接受的形狀，並由 normalize 轉成標準形狀；
// 其他形狀一律回報為 Issue。

// asNumber 接受 json.Number 與 Go 的數值型別。
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// numberText 回傳數字的字串形式：整數保留原始寫法，小數至少帶一位小數。
func numberText(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		// 整數字面值 (包含超過 int64 的) 原樣保留
		if !strings.ContainsAny(n.String(), ".eE") {
			return n.String(), true
		}
	case int:
		return strconv.Itoa(n), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	}
	f, ok := asNumber(v)
	if !ok {
		return "", false
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) {
		s += ".0"
	}
	return s, true
}

type segmentIDShape int

const (
	segmentIDMissing segmentIDShape = iota
	segmentIDText
	segmentIDNumber
)

// segmentIDInput 是 segment_id：null、字串或數字。
type segmentIDInput struct {
	shape segmentIDShape
	text  string
}

func readSegmentID(v any) (segmentIDInput, bool) {
	if v == nil {
		return segmentIDInput{shape: segmentIDMissing}, true
	}
	if s, ok := v.(string); ok {
		return segmentIDInput{shape: segmentIDText, text: s}, true
	}
	if s, ok := numberText(v); ok {
		return segmentIDInput{shape: segmentIDNumber, text: s}, true
	}
	return segmentIDInput{}, false
}

func (in segmentIDInput) normalize() any {
	if in.shape == segmentIDMissing {
		return nil
	}
	return in.text
}

type ocrShape int

const (
	ocrMissing ocrShape = iota
	ocrEmptyList
	ocrTextList
	ocrObject
)

// ocrInput 是 text_extraction_ocr：null、字串清單或物件。
type ocrInput struct {
	shape  ocrShape
	list   []any
	object map[string]any
}

func readOCR(v any) (ocrInput, bool) {
	switch t := v.(type) {
	case nil:
		return ocrInput{shape: ocrMissing}, true
	case map[string]any:
		return ocrInput{shape: ocrObject, object: t}, true
	case []any:
		if len(t) == 0 {
			return ocrInput{shape: ocrEmptyList}, true
		}
		allText := lo.EveryBy(t, func(item any) bool {
			_, ok := item.(string)
			return ok
		})
		if !allText {
			return ocrInput{}, false
		}
		return ocrInput{shape: ocrTextList, list: t}, true
	}
	return ocrInput{}, false
}

func (in ocrInput) normalize() any {
	switch in.shape {
	case ocrTextList:
		return map[string]any{"visible_text": in.list}
	case ocrObject:
		return in.object
	}
	return nil
}

type timeShape int

const (
	timeMissing timeShape = iota
	timeText
	timeSeconds
)

// timeInput 是一個時間點：null、時間字串或秒數。
type timeInput struct {
	shape   timeShape
	text    string
	seconds float64
}

func readTime(v any) (timeInput, bool) {
	if v == nil {
		return timeInput{shape: timeMissing}, true
	}
	if s, ok := v.(string); ok {
		return timeInput{shape: timeText, text: s}, true
	}
	if f, ok := asNumber(v); ok {
		return timeInput{shape: timeSeconds, seconds: f}, true
	}
	return timeInput{}, false
}

func (in timeInput) normalize() any {
	switch in.shape {
	case timeText:
		return in.text
	case timeSeconds:
		return SecondsToTimeString(in.seconds)
	}
	return nil
}

type audienceShape int

const (
	audienceMissing audienceShape = iota
	audienceText
	audienceList
)

// audienceInput 是 target_audience：null、字串或字串清單。
type audienceInput struct {
	shape audienceShape
	text  string
	items []string
}

func readAudience(v any) (audienceInput, bool) {
	switch t := v.(type) {
	case nil:
		return audienceInput{shape: audienceMissing}, true
	case string:
		return audienceInput{shape: audienceText, text: t}, true
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				items = append(items, s)
				continue
			}
			if s, ok := numberText(item); ok {
				items = append(items, s)
				continue
			}
			return audienceInput{}, false
		}
		return audienceInput{shape: audienceList, items: items}, true
	}
	return audienceInput{}, false
}

func (in audienceInput) normalize() any {
	switch in.shape {
	case audienceText:
		return in.text
	case audienceList:
		return strings.Join(in.items, ", ")
	}
	return nil
}
