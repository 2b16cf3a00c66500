package models

// AnalysisResult 是模型回應正規化後的標準報告。
// 所有頂層欄位皆為選填；缺少的欄位以 null 或空清單表示。
type AnalysisResult struct {
	FileInfo          *FileInfo               `json:"file_info"`
	GlobalAnalysis    *GlobalAnalysis         `json:"global_analysis"`
	GlobalVirality    *GlobalViralityAnalysis `json:"global_virality"`
	TimelineSegments  []TimelineSegment       `json:"timeline_segments"`
	ExtractedEntities *ExtractedEntities      `json:"extracted_entities"`
}

type TechnicalSpecs struct {
	Resolution    *string  `json:"resolution"`
	FPS           *float64 `json:"fps"`
	AudioChannels *int     `json:"audio_channels"`
}

type FileInfo struct {
	VideoID         *string         `json:"video_id"`
	Filename        *string         `json:"filename"`
	ProcessedAt     *string         `json:"processed_at"`
	DurationSeconds *float64        `json:"duration_seconds"`
	TechnicalSpecs  *TechnicalSpecs `json:"technical_specs"`
}

type GlobalAnalysis struct {
	TitleDetected    *string  `json:"title_detected"`
	Topics           []string `json:"topics"`
	Summary          *string  `json:"summary"`
	OverallSentiment *string  `json:"overall_sentiment"`
	DominantLanguage *string  `json:"dominant_language"`
}

// GlobalViralityAnalysis 整支影片的病毒傳播評估。ViralityScore 為 1-10。
type GlobalViralityAnalysis struct {
	ViralityScore  *int    `json:"virality_score"`
	HookStrategy   *string `json:"hook_strategy"`
	TargetAudience *string `json:"target_audience"`
	ShareTrigger   *string `json:"share_trigger"`
}

// TimeRange 的 start/end 為 "MM:SS" 或 "HH:MM:SS" 字串。
// 字串輸入原樣保留，不檢查格式。
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Classification struct {
	Type  *string `json:"type"`
	Topic *string `json:"topic"`
}

type VisualSubject struct {
	Label      *string  `json:"label"`
	Attributes []string `json:"attributes"`
	Action     *string  `json:"action"`
	Emotion    *string  `json:"emotion"`
}

type VisualAnalysis struct {
	ShotType       *string         `json:"shot_type"`
	CameraMovement *string         `json:"camera_movement"`
	MainSubjects   []VisualSubject `json:"main_subjects"`
	Environment    *string         `json:"environment"`
}

type AudioAnalysis struct {
	Transcript      *string `json:"transcript"`
	SpeakerID       *string `json:"speaker_id"`
	BgMusic         *string `json:"bg_music"`
	VoiceIntonation *string `json:"voice_intonation"`
}

// TextExtractionOCR 畫面上可辨識的文字。
type TextExtractionOCR struct {
	VisibleText         []string `json:"visible_text"`
	ProgrammingLanguage *string  `json:"programming_language"`
}

// EngagementMechanics 說明片段為何吸引觀眾 (hook、留存手法、心理觸發)。
type EngagementMechanics struct {
	IsHook               bool    `json:"is_hook"`
	Tactic               *string `json:"tactic"`
	PsychologicalTrigger *string `json:"psychological_trigger"`
}

// IRReconstruction 片段的抽象中介表示與重建用的生成提示。
type IRReconstruction struct {
	AbstractConcept  *string `json:"abstract_concept"`
	GenerativePrompt *string `json:"generative_prompt"`
}

// TimelineSegment 影片中的一個片段。
// Start/End 保留模型在頂層給出的時間 (已轉為字串)，TimeRange 為統一後的表示。
type TimelineSegment struct {
	SegmentID           *string              `json:"segment_id"`
	TimeRange           *TimeRange           `json:"time_range"`
	Start               *string              `json:"start"`
	End                 *string              `json:"end"`
	Classification      *Classification      `json:"classification"`
	VisualAnalysis      *VisualAnalysis      `json:"visual_analysis"`
	AudioAnalysis       *AudioAnalysis       `json:"audio_analysis"`
	TextExtractionOCR   *TextExtractionOCR   `json:"text_extraction_ocr"`
	EngagementMechanics *EngagementMechanics `json:"engagement_mechanics"`
	IRReconstruction    *IRReconstruction    `json:"ir_reconstruction"`
}

type ExtractedAction struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

type ExtractedEntities struct {
	ActionsDetected []ExtractedAction `json:"actions_detected"`
	KeyObjects      []string          `json:"key_objects"`
	ReferencedLinks []string          `json:"referenced_links"`
}

// NewAnalysisResult 回傳一個空但結構完整的報告。
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{TimelineSegments: []TimelineSegment{}}
}
