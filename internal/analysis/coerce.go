package analysis

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"video-mastermind/internal/models"
)

// reportKeys 是 AnalysisResult 的頂層欄位，用來區分錯誤信封與帶有額外欄位的報告。
var reportKeys = []string{"file_info", "global_analysis", "global_virality", "timeline_segments", "extracted_entities"}

// CoerceAndValidate 將 JSON 值修復並驗證為 AnalysisResult。
//
// 片段層級的修復 (segment_id 轉字串、OCR 清單包裝、頂層 start/end 統一為 time_range)
// 在結構驗證之前依序執行；target_audience 清單在驗證 global_virality 前合併。
// 錯誤信封或非物件的輸入一律回傳 *SchemaError。回傳錯誤時結果必為 nil。
func CoerceAndValidate(value any) (*models.AnalysisResult, error) {
	if failure, ok := AsParseFailure(value); ok {
		return nil, &SchemaError{Issues: []Issue{{
			Path:    "$",
			Message: "model output is a parse-failure envelope, not a report",
			Value:   failure.Raw,
		}}}
	}

	root, ok := value.(map[string]any)
	if !ok {
		return nil, &SchemaError{Issues: []Issue{{Path: "$", Message: "expected a JSON object", Value: value}}}
	}
	if isErrorPayload(root) {
		return nil, &SchemaError{Issues: []Issue{{Path: "$.error", Message: "model returned an error payload instead of a report", Value: root["error"]}}}
	}

	v := &validator{}
	result := v.analysisResult(root)
	if len(v.issues) > 0 {
		return nil, &SchemaError{Issues: v.issues}
	}
	return result, nil
}

// isErrorPayload 判斷物件是否只帶有 "error" 而沒有任何報告欄位。
func isErrorPayload(root map[string]any) bool {
	if _, ok := root["error"]; !ok {
		return false
	}
	for _, key := range reportKeys {
		if _, ok := root[key]; ok {
			return false
		}
	}
	return true
}

// validator 逐欄讀取 JSON 值並累積所有問題，而不是在第一個錯誤就停止。
type validator struct {
	issues []Issue
}

func (v *validator) fail(path, message string, value any) {
	v.issues = append(v.issues, Issue{Path: path, Message: message, Value: value})
}

func field(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func element(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// object 讀取選填物件；null 回傳 nil。
func (v *validator) object(path string, raw any) map[string]any {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		v.fail(path, "expected an object", raw)
		return nil
	}
	return m
}

// list 讀取選填陣列；null 視為空陣列。
func (v *validator) list(path string, raw any) []any {
	if raw == nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		v.fail(path, "expected an array", raw)
		return nil
	}
	return items
}

func (v *validator) str(path string, raw any) *string {
	if raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(path, "expected a string", raw)
		return nil
	}
	return &s
}

func (v *validator) requiredStr(path string, raw any) string {
	if raw == nil {
		v.fail(path, "field required", nil)
		return ""
	}
	if s := v.str(path, raw); s != nil {
		return *s
	}
	return ""
}

func (v *validator) float(path string, raw any) *float64 {
	if raw == nil {
		return nil
	}
	if f, ok := asNumber(raw); ok {
		return &f
	}
	if s, ok := raw.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	v.fail(path, "expected a number", raw)
	return nil
}

func (v *validator) integer(path string, raw any) *int {
	if raw == nil {
		return nil
	}
	var f float64
	switch t := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			v.fail(path, "expected an integer", raw)
			return nil
		}
		f = parsed
	default:
		n, ok := asNumber(raw)
		if !ok {
			v.fail(path, "expected an integer", raw)
			return nil
		}
		f = n
	}
	if math.IsNaN(f) {
		v.fail(path, "expected an integer", raw)
		return nil
	}
	if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		v.fail(path, "integer out of range", raw)
		return nil
	}
	if f != float64(int(f)) {
		v.fail(path, "expected an integer, got a fractional number", raw)
		return nil
	}
	n := int(f)
	return &n
}

func (v *validator) boolean(path string, raw any, fallback bool) bool {
	switch t := raw.(type) {
	case nil:
		return fallback
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "on", "t", "1":
			return true
		case "false", "no", "n", "off", "f", "0":
			return false
		}
	default:
		if f, ok := asNumber(raw); ok && (f == 0 || f == 1) {
			return f == 1
		}
	}
	v.fail(path, "expected a boolean", raw)
	return fallback
}

// stringList 讀取字串陣列；null 視為空陣列，回傳值永不為 nil。
func (v *validator) stringList(path string, raw any) []string {
	items := v.list(path, raw)
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			v.fail(element(path, i), "expected a string", item)
			continue
		}
		out = append(out, s)
	}
	return out
}

// timePoint 讀取必填時間點，秒數會轉為時間字串。
func (v *validator) timePoint(path string, raw any) string {
	in, ok := readTime(raw)
	if !ok {
		v.fail(path, "expected a time string or seconds", raw)
		return ""
	}
	if in.shape == timeMissing {
		v.fail(path, "field required", nil)
		return ""
	}
	return in.normalize().(string)
}

func (v *validator) analysisResult(root map[string]any) *models.AnalysisResult {
	result := models.NewAnalysisResult()

	if m := v.object("file_info", root["file_info"]); m != nil {
		result.FileInfo = v.fileInfo("file_info", m)
	}
	if m := v.object("global_analysis", root["global_analysis"]); m != nil {
		result.GlobalAnalysis = v.globalAnalysis("global_analysis", m)
	}
	if m := v.object("global_virality", root["global_virality"]); m != nil {
		result.GlobalVirality = v.globalVirality("global_virality", m)
	}
	for i, raw := range v.list("timeline_segments", root["timeline_segments"]) {
		path := element("timeline_segments", i)
		m, ok := raw.(map[string]any)
		if !ok {
			v.fail(path, "expected an object", raw)
			continue
		}
		result.TimelineSegments = append(result.TimelineSegments, v.segment(path, m))
	}
	if m := v.object("extracted_entities", root["extracted_entities"]); m != nil {
		result.ExtractedEntities = v.extractedEntities("extracted_entities", m)
	}
	return result
}

func (v *validator) fileInfo(path string, m map[string]any) *models.FileInfo {
	info := &models.FileInfo{
		VideoID:         v.str(field(path, "video_id"), m["video_id"]),
		Filename:        v.str(field(path, "filename"), m["filename"]),
		ProcessedAt:     v.str(field(path, "processed_at"), m["processed_at"]),
		DurationSeconds: v.float(field(path, "duration_seconds"), m["duration_seconds"]),
	}
	specsPath := field(path, "technical_specs")
	if specs := v.object(specsPath, m["technical_specs"]); specs != nil {
		info.TechnicalSpecs = &models.TechnicalSpecs{
			Resolution:    v.str(field(specsPath, "resolution"), specs["resolution"]),
			FPS:           v.float(field(specsPath, "fps"), specs["fps"]),
			AudioChannels: v.integer(field(specsPath, "audio_channels"), specs["audio_channels"]),
		}
	}
	return info
}

func (v *validator) globalAnalysis(path string, m map[string]any) *models.GlobalAnalysis {
	return &models.GlobalAnalysis{
		TitleDetected:    v.str(field(path, "title_detected"), m["title_detected"]),
		Topics:           v.stringList(field(path, "topics"), m["topics"]),
		Summary:          v.str(field(path, "summary"), m["summary"]),
		OverallSentiment: v.str(field(path, "overall_sentiment"), m["overall_sentiment"]),
		DominantLanguage: v.str(field(path, "dominant_language"), m["dominant_language"]),
	}
}

// repairVirality 將 target_audience 清單合併為單一字串。
func (v *validator) repairVirality(path string, m map[string]any) map[string]any {
	repaired := maps.Clone(m)
	in, ok := readAudience(m["target_audience"])
	if !ok {
		v.fail(field(path, "target_audience"), "expected a string or a list of strings", m["target_audience"])
		delete(repaired, "target_audience")
		return repaired
	}
	repaired["target_audience"] = in.normalize()
	return repaired
}

func (v *validator) globalVirality(path string, m map[string]any) *models.GlobalViralityAnalysis {
	m = v.repairVirality(path, m)
	return &models.GlobalViralityAnalysis{
		ViralityScore:  v.integer(field(path, "virality_score"), m["virality_score"]),
		HookStrategy:   v.str(field(path, "hook_strategy"), m["hook_strategy"]),
		TargetAudience: v.str(field(path, "target_audience"), m["target_audience"]),
		ShareTrigger:   v.str(field(path, "share_trigger"), m["share_trigger"]),
	}
}

// repairSegment 在結構驗證前修復片段，順序為 segment_id、OCR、時間。
// 輸入的 map 不會被修改。
func (v *validator) repairSegment(path string, m map[string]any) map[string]any {
	repaired := maps.Clone(m)

	if id, ok := readSegmentID(m["segment_id"]); ok {
		repaired["segment_id"] = id.normalize()
	} else {
		v.fail(field(path, "segment_id"), "expected a string or a number", m["segment_id"])
		delete(repaired, "segment_id")
	}

	if ocr, ok := readOCR(m["text_extraction_ocr"]); ok {
		repaired["text_extraction_ocr"] = ocr.normalize()
	} else {
		v.fail(field(path, "text_extraction_ocr"), "expected an object or a list of strings", m["text_extraction_ocr"])
		delete(repaired, "text_extraction_ocr")
	}

	for _, key := range []string{"start", "end"} {
		in, ok := readTime(m[key])
		if !ok {
			v.fail(field(path, key), "expected a time string or seconds", m[key])
			delete(repaired, key)
			continue
		}
		repaired[key] = in.normalize()
	}
	if repaired["time_range"] == nil && repaired["start"] != nil && repaired["end"] != nil {
		repaired["time_range"] = map[string]any{"start": repaired["start"], "end": repaired["end"]}
	}
	return repaired
}

func (v *validator) segment(path string, m map[string]any) models.TimelineSegment {
	m = v.repairSegment(path, m)

	seg := models.TimelineSegment{
		SegmentID: v.str(field(path, "segment_id"), m["segment_id"]),
		Start:     v.str(field(path, "start"), m["start"]),
		End:       v.str(field(path, "end"), m["end"]),
	}

	trPath := field(path, "time_range")
	if tr := v.object(trPath, m["time_range"]); tr != nil {
		seg.TimeRange = &models.TimeRange{
			Start: v.timePoint(field(trPath, "start"), tr["start"]),
			End:   v.timePoint(field(trPath, "end"), tr["end"]),
		}
	}

	clsPath := field(path, "classification")
	if cls := v.object(clsPath, m["classification"]); cls != nil {
		seg.Classification = &models.Classification{
			Type:  v.str(field(clsPath, "type"), cls["type"]),
			Topic: v.str(field(clsPath, "topic"), cls["topic"]),
		}
	}

	visPath := field(path, "visual_analysis")
	if vis := v.object(visPath, m["visual_analysis"]); vis != nil {
		seg.VisualAnalysis = v.visualAnalysis(visPath, vis)
	}

	audPath := field(path, "audio_analysis")
	if aud := v.object(audPath, m["audio_analysis"]); aud != nil {
		seg.AudioAnalysis = &models.AudioAnalysis{
			Transcript:      v.str(field(audPath, "transcript"), aud["transcript"]),
			SpeakerID:       v.str(field(audPath, "speaker_id"), aud["speaker_id"]),
			BgMusic:         v.str(field(audPath, "bg_music"), aud["bg_music"]),
			VoiceIntonation: v.str(field(audPath, "voice_intonation"), aud["voice_intonation"]),
		}
	}

	ocrPath := field(path, "text_extraction_ocr")
	if ocr := v.object(ocrPath, m["text_extraction_ocr"]); ocr != nil {
		seg.TextExtractionOCR = &models.TextExtractionOCR{
			VisibleText:         v.stringList(field(ocrPath, "visible_text"), ocr["visible_text"]),
			ProgrammingLanguage: v.str(field(ocrPath, "programming_language"), ocr["programming_language"]),
		}
	}

	engPath := field(path, "engagement_mechanics")
	if eng := v.object(engPath, m["engagement_mechanics"]); eng != nil {
		seg.EngagementMechanics = &models.EngagementMechanics{
			IsHook:               v.boolean(field(engPath, "is_hook"), eng["is_hook"], false),
			Tactic:               v.str(field(engPath, "tactic"), eng["tactic"]),
			PsychologicalTrigger: v.str(field(engPath, "psychological_trigger"), eng["psychological_trigger"]),
		}
	}

	irPath := field(path, "ir_reconstruction")
	if ir := v.object(irPath, m["ir_reconstruction"]); ir != nil {
		seg.IRReconstruction = &models.IRReconstruction{
			AbstractConcept:  v.str(field(irPath, "abstract_concept"), ir["abstract_concept"]),
			GenerativePrompt: v.str(field(irPath, "generative_prompt"), ir["generative_prompt"]),
		}
	}

	return seg
}

func (v *validator) visualAnalysis(path string, m map[string]any) *models.VisualAnalysis {
	vis := &models.VisualAnalysis{
		ShotType:       v.str(field(path, "shot_type"), m["shot_type"]),
		CameraMovement: v.str(field(path, "camera_movement"), m["camera_movement"]),
		MainSubjects:   []models.VisualSubject{},
		Environment:    v.str(field(path, "environment"), m["environment"]),
	}
	subjectsPath := field(path, "main_subjects")
	for i, raw := range v.list(subjectsPath, m["main_subjects"]) {
		subPath := element(subjectsPath, i)
		sub, ok := raw.(map[string]any)
		if !ok {
			v.fail(subPath, "expected an object", raw)
			continue
		}
		vis.MainSubjects = append(vis.MainSubjects, models.VisualSubject{
			Label:      v.str(field(subPath, "label"), sub["label"]),
			Attributes: v.stringList(field(subPath, "attributes"), sub["attributes"]),
			Action:     v.str(field(subPath, "action"), sub["action"]),
			Emotion:    v.str(field(subPath, "emotion"), sub["emotion"]),
		})
	}
	return vis
}

func (v *validator) extractedEntities(path string, m map[string]any) *models.ExtractedEntities {
	entities := &models.ExtractedEntities{
		ActionsDetected: []models.ExtractedAction{},
		KeyObjects:      v.stringList(field(path, "key_objects"), m["key_objects"]),
		ReferencedLinks: v.stringList(field(path, "referenced_links"), m["referenced_links"]),
	}
	actionsPath := field(path, "actions_detected")
	for i, raw := range v.list(actionsPath, m["actions_detected"]) {
		actPath := element(actionsPath, i)
		act, ok := raw.(map[string]any)
		if !ok {
			v.fail(actPath, "expected an object", raw)
			continue
		}
		entities.ActionsDetected = append(entities.ActionsDetected, models.ExtractedAction{
			Action:    v.requiredStr(field(actPath, "action"), act["action"]),
			Timestamp: v.timePoint(field(actPath, "timestamp"), act["timestamp"]),
		})
	}
	return entities
}
