// Package report 將正規化後的分析報告輸出為文字摘要或 CSV。
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"video-mastermind/internal/models"
)

const na = "N/A"

// SegmentHeaders 是片段 CSV 的標題列。
var SegmentHeaders = []string{
	"segment_id",
	"start",
	"end",
	"type",
	"shot_type",
	"camera",
	"is_hook",
	"tactic",
	"trigger",
	"ir_concept",
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func orNA(p *string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return na
	}
	return *p
}

// segmentTimes 優先使用 time_range，沒有時退回頂層 start/end。
func segmentTimes(seg models.TimelineSegment) (string, string) {
	if seg.TimeRange != nil {
		return seg.TimeRange.Start, seg.TimeRange.End
	}
	return str(seg.Start), str(seg.End)
}

func timeLabel(seg models.TimelineSegment) string {
	if seg.TimeRange == nil {
		return na
	}
	return seg.TimeRange.Start + " - " + seg.TimeRange.End
}

// SegmentRow 將一個片段轉為 CSV 資料列，欄位順序與 SegmentHeaders 相同。
func SegmentRow(seg models.TimelineSegment) []string {
	row := make([]string, len(SegmentHeaders))
	row[0] = str(seg.SegmentID)
	row[1], row[2] = segmentTimes(seg)
	if seg.Classification != nil {
		row[3] = str(seg.Classification.Type)
	}
	if seg.VisualAnalysis != nil {
		row[4] = str(seg.VisualAnalysis.ShotType)
		row[5] = str(seg.VisualAnalysis.CameraMovement)
	}
	row[6] = "false"
	if seg.EngagementMechanics != nil {
		row[6] = strconv.FormatBool(seg.EngagementMechanics.IsHook)
		row[7] = str(seg.EngagementMechanics.Tactic)
		row[8] = str(seg.EngagementMechanics.PsychologicalTrigger)
	}
	if seg.IRReconstruction != nil {
		row[9] = str(seg.IRReconstruction.AbstractConcept)
	}
	return row
}

// WriteSegmentsCSV 將報告的所有片段寫成 CSV (含標題列)。
func WriteSegmentsCSV(w io.Writer, result *models.AnalysisResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(SegmentHeaders); err != nil {
		return fmt.Errorf("寫入 CSV 標題失敗: %w", err)
	}
	if result != nil {
		for i, seg := range result.TimelineSegments {
			if err := writer.Write(SegmentRow(seg)); err != nil {
				return fmt.Errorf("寫入第 %d 個片段失敗: %w", i, err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummary 輸出供終端機閱讀的摘要：片段數、第一個片段、病毒傳播評估、hook 與重建提示。
func WriteSummary(w io.Writer, result *models.AnalysisResult) error {
	if result == nil {
		result = models.NewAnalysisResult()
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "- Segments detected: %d\n", len(result.TimelineSegments))
	if len(result.TimelineSegments) > 0 {
		first := result.TimelineSegments[0]
		var ocr []string
		if first.TextExtractionOCR != nil {
			ocr = first.TextExtractionOCR.VisibleText
		}
		fmt.Fprintf(&sb, "- First segment ID: %s\n", orNA(first.SegmentID))
		fmt.Fprintf(&sb, "- First segment OCR text (if any): %s\n", formatList(ocr))
	}

	if v := result.GlobalVirality; v != nil {
		score := 0
		if v.ViralityScore != nil {
			score = *v.ViralityScore
		}
		sb.WriteString("\nVirality\n")
		fmt.Fprintf(&sb, "  Score: %d/10\n", score)
		fmt.Fprintf(&sb, "  Hook strategy: %s\n", orNA(v.HookStrategy))
		fmt.Fprintf(&sb, "  Target audience: %s\n", orNA(v.TargetAudience))
		fmt.Fprintf(&sb, "  Share trigger: %s\n", orNA(v.ShareTrigger))
	}

	hooks := lo.Filter(result.TimelineSegments, func(seg models.TimelineSegment, _ int) bool {
		return seg.EngagementMechanics != nil && seg.EngagementMechanics.IsHook
	})
	if len(hooks) > 0 {
		sb.WriteString("\nHooks\n")
		for _, seg := range hooks {
			fmt.Fprintf(&sb, "  Scene %s (%s): %s\n", orNA(seg.SegmentID), timeLabel(seg), orNA(seg.EngagementMechanics.Tactic))
		}
	}

	withIR := lo.Filter(result.TimelineSegments, func(seg models.TimelineSegment, _ int) bool {
		return seg.IRReconstruction != nil && seg.IRReconstruction.GenerativePrompt != nil && *seg.IRReconstruction.GenerativePrompt != ""
	})
	if len(withIR) > 0 {
		sb.WriteString("\nReconstruction prompts\n")
		for _, seg := range withIR {
			fmt.Fprintf(&sb, "  Scene %s (%s)\n", orNA(seg.SegmentID), timeLabel(seg))
			fmt.Fprintf(&sb, "    Concept: %s\n", orNA(seg.IRReconstruction.AbstractConcept))
			fmt.Fprintf(&sb, "    Prompt: %s\n", *seg.IRReconstruction.GenerativePrompt)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func formatList(items []string) string {
	quoted := lo.Map(items, func(s string, _ int) string { return strconv.Quote(s) })
	return "[" + strings.Join(quoted, ", ") + "]"
}

// FirstPositivePrompt 從逆向工程結果取出 timeline[0].reconstruction.positive_prompt。
// 結構不符或欄位缺少時回傳 false。
func FirstPositivePrompt(value any) (string, bool) {
	root, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	timeline, ok := root["timeline"].([]any)
	if !ok || len(timeline) == 0 {
		return "", false
	}
	scene, ok := timeline[0].(map[string]any)
	if !ok {
		return "", false
	}
	reconstruction, ok := scene["reconstruction"].(map[string]any)
	if !ok {
		return "", false
	}
	prompt, ok := reconstruction["positive_prompt"].(string)
	return prompt, ok
}
