package analysis

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-mastermind/internal/models"
)

func coerceText(t *testing.T, raw string) *models.AnalysisResult {
	t.Helper()
	result, err := CoerceAndValidate(ExtractJSON(raw))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func schemaIssues(t *testing.T, err error) []Issue {
	t.Helper()
	require.Error(t, err)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "expected *SchemaError, got %T", err)
	return schemaErr.Issues
}

func issuePaths(issues []Issue) []string {
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}
	return paths
}

func TestCoerce_FencedSegmentWithSeconds(t *testing.T) {
	raw := "```json\n{\"timeline_segments\":[{\"segment_id\":1,\"start\":65,\"end\":70}]}\n```"
	result := coerceText(t, raw)

	require.Len(t, result.TimelineSegments, 1)
	seg := result.TimelineSegments[0]
	require.NotNil(t, seg.SegmentID)
	assert.Equal(t, "1", *seg.SegmentID)
	require.NotNil(t, seg.TimeRange)
	assert.Equal(t, models.TimeRange{Start: "01:05", End: "01:10"}, *seg.TimeRange)
	assert.Equal(t, "01:05", *seg.Start)
	assert.Equal(t, "01:10", *seg.End)
}

func TestCoerce_NotJSONBecomesSchemaError(t *testing.T) {
	parsed := ExtractJSON("not json at all")
	require.IsType(t, &ParseFailure{}, parsed)

	result, err := CoerceAndValidate(parsed)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSchemaValidation)
	issues := schemaIssues(t, err)
	assert.Equal(t, "$", issues[0].Path)
}

func TestCoerce_SerializedEnvelopeIsRejected(t *testing.T) {
	b, err := json.Marshal(ExtractJSON("nope"))
	require.NoError(t, err)

	result, err := CoerceAndValidate(ExtractJSON(string(b)))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestCoerce_ErrorPayloadIsRejected(t *testing.T) {
	_, err := CoerceAndValidate(ExtractJSON(`{"error": "quota exceeded", "code": 429}`))
	issues := schemaIssues(t, err)
	assert.Equal(t, "$.error", issues[0].Path)

	// 帶有報告欄位時 "error" 只是額外欄位。
	result := coerceText(t, `{"error": "ignored", "timeline_segments": []}`)
	assert.Empty(t, result.TimelineSegments)
}

func TestCoerce_NonObjectRoots(t *testing.T) {
	for _, raw := range []string{`[]`, `[{"segment_id": 1}]`, `"text"`, `12`, `null`, `true`} {
		result, err := CoerceAndValidate(ExtractJSON(raw))
		assert.Nil(t, result, raw)
		assert.ErrorIs(t, err, ErrSchemaValidation, raw)
	}
}

func TestCoerce_EmptyObjectIsValidEmptyReport(t *testing.T) {
	result := coerceText(t, `{}`)

	assert.Nil(t, result.FileInfo)
	assert.Nil(t, result.GlobalAnalysis)
	assert.Nil(t, result.GlobalVirality)
	assert.Nil(t, result.ExtractedEntities)
	assert.NotNil(t, result.TimelineSegments)
	assert.Empty(t, result.TimelineSegments)

	b, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"file_info": null,
		"global_analysis": null,
		"global_virality": null,
		"timeline_segments": [],
		"extracted_entities": null
	}`, string(b))
}

func TestCoerce_ShortVideoScenario(t *testing.T) {
	raw := "```json\n" + `{
	  "file_info": {"filename": "clip.mp4", "duration_seconds": 140},
	  "global_virality": {"virality_score": 8, "target_audience": ["gamers", "teens"]},
	  "timeline_segments": [
	    {
	      "segment_id": 3,
	      "start": 125,
	      "end": 140,
	      "text_extraction_ocr": ["SALE", "50% OFF"],
	      "engagement_mechanics": {"is_hook": true, "tactic": "pattern interrupt"}
	    }
	  ]
	}` + "\n```"
	result := coerceText(t, raw)

	require.NotNil(t, result.FileInfo)
	assert.Equal(t, "clip.mp4", *result.FileInfo.Filename)
	assert.Equal(t, 140.0, *result.FileInfo.DurationSeconds)
	assert.Nil(t, result.FileInfo.TechnicalSpecs)

	require.NotNil(t, result.GlobalVirality)
	assert.Equal(t, 8, *result.GlobalVirality.ViralityScore)
	assert.Equal(t, "gamers, teens", *result.GlobalVirality.TargetAudience)

	require.Len(t, result.TimelineSegments, 1)
	seg := result.TimelineSegments[0]
	assert.Equal(t, "3", *seg.SegmentID)
	assert.Equal(t, &models.TimeRange{Start: "02:05", End: "02:20"}, seg.TimeRange)
	require.NotNil(t, seg.TextExtractionOCR)
	assert.Equal(t, []string{"SALE", "50% OFF"}, seg.TextExtractionOCR.VisibleText)
	assert.Nil(t, seg.TextExtractionOCR.ProgrammingLanguage)
	require.NotNil(t, seg.EngagementMechanics)
	assert.True(t, seg.EngagementMechanics.IsHook)
	assert.Equal(t, "pattern interrupt", *seg.EngagementMechanics.Tactic)
	assert.Nil(t, seg.EngagementMechanics.PsychologicalTrigger)
}

func TestCoerce_LongVideoUsesHours(t *testing.T) {
	result := coerceText(t, `{"timeline_segments": [{"segment_id": "s1", "start": 3725, "end": 3730.9}]}`)
	seg := result.TimelineSegments[0]
	assert.Equal(t, &models.TimeRange{Start: "01:02:05", End: "01:02:10"}, seg.TimeRange)
}

func TestCoerce_SegmentIDShapes(t *testing.T) {
	cases := map[string]string{
		`"abc"`:                "abc",
		`3`:                    "3",
		`-2`:                   "-2",
		`1.5`:                  "1.5",
		`2.0`:                  "2.0",
		`1e2`:                  "100.0",
		`12345678901234567890`: "12345678901234567890",
	}
	for in, want := range cases {
		result := coerceText(t, `{"timeline_segments": [{"segment_id": `+in+`}]}`)
		require.NotNil(t, result.TimelineSegments[0].SegmentID, in)
		assert.Equal(t, want, *result.TimelineSegments[0].SegmentID, in)
	}

	result := coerceText(t, `{"timeline_segments": [{"segment_id": null}]}`)
	assert.Nil(t, result.TimelineSegments[0].SegmentID)

	_, err := CoerceAndValidate(ExtractJSON(`{"timeline_segments": [{"segment_id": {"id": 1}}]}`))
	assert.Equal(t, []string{"timeline_segments[0].segment_id"}, issuePaths(schemaIssues(t, err)))
}

func TestCoerce_OCRShapes(t *testing.T) {
	result := coerceText(t, `{"timeline_segments": [{"text_extraction_ocr": []}]}`)
	assert.Nil(t, result.TimelineSegments[0].TextExtractionOCR)

	result = coerceText(t, `{"timeline_segments": [{"text_extraction_ocr": {"visible_text": ["x"], "programming_language": "go"}}]}`)
	ocr := result.TimelineSegments[0].TextExtractionOCR
	require.NotNil(t, ocr)
	assert.Equal(t, []string{"x"}, ocr.VisibleText)
	assert.Equal(t, "go", *ocr.ProgrammingLanguage)

	result = coerceText(t, `{"timeline_segments": [{"text_extraction_ocr": {}}]}`)
	ocr = result.TimelineSegments[0].TextExtractionOCR
	require.NotNil(t, ocr)
	assert.NotNil(t, ocr.VisibleText)
	assert.Empty(t, ocr.VisibleText)

	_, err := CoerceAndValidate(ExtractJSON(`{"timeline_segments": [{"text_extraction_ocr": ["ok", 3]}]}`))
	assert.Equal(t, []string{"timeline_segments[0].text_extraction_ocr"}, issuePaths(schemaIssues(t, err)))

	_, err = CoerceAndValidate(ExtractJSON(`{"timeline_segments": [{"text_extraction_ocr": "SALE"}]}`))
	assert.Equal(t, []string{"timeline_segments[0].text_extraction_ocr"}, issuePaths(schemaIssues(t, err)))
}

func TestCoerce_TimeRangeSynthesis(t *testing.T) {
	// 已有 time_range 時保留原值。
	result := coerceText(t, `{"timeline_segments": [{"time_range": {"start": "00:01", "end": "00:02"}, "start": 30, "end": 40}]}`)
	seg := result.TimelineSegments[0]
	assert.Equal(t, &models.TimeRange{Start: "00:01", End: "00:02"}, seg.TimeRange)
	assert.Equal(t, "00:30", *seg.Start)
	assert.Equal(t, "00:40", *seg.End)

	// 只有 start 時不合成 time_range。
	result = coerceText(t, `{"timeline_segments": [{"start": 5}]}`)
	seg = result.TimelineSegments[0]
	assert.Nil(t, seg.TimeRange)
	assert.Equal(t, "00:05", *seg.Start)
	assert.Nil(t, seg.End)

	// 字串時間原樣保留。
	result = coerceText(t, `{"timeline_segments": [{"start": "0:07", "end": "later"}]}`)
	assert.Equal(t, &models.TimeRange{Start: "0:07", End: "later"}, result.TimelineSegments[0].TimeRange)

	// 巢狀 time_range 的秒數同樣轉換。
	result = coerceText(t, `{"timeline_segments": [{"time_range": {"start": 65, "end": 70}}]}`)
	assert.Equal(t, &models.TimeRange{Start: "01:05", End: "01:10"}, result.TimelineSegments[0].TimeRange)
}

func TestCoerce_TimeRangeMissingBound(t *testing.T) {
	_, err := CoerceAndValidate(ExtractJSON(`{"timeline_segments": [{"time_range": {"start": "00:01"}}]}`))
	assert.Equal(t, []string{"timeline_segments[0].time_range.end"}, issuePaths(schemaIssues(t, err)))
}

func TestCoerce_NegativeSecondsClamp(t *testing.T) {
	result := coerceText(t, `{"timeline_segments": [{"start": -3, "end": 2}]}`)
	assert.Equal(t, &models.TimeRange{Start: "00:00", End: "00:02"}, result.TimelineSegments[0].TimeRange)
}

func TestCoerce_AudienceShapes(t *testing.T) {
	result := coerceText(t, `{"global_virality": {"target_audience": "everyone"}}`)
	assert.Equal(t, "everyone", *result.GlobalVirality.TargetAudience)

	result = coerceText(t, `{"global_virality": {"target_audience": []}}`)
	assert.Equal(t, "", *result.GlobalVirality.TargetAudience)

	result = coerceText(t, `{"global_virality": {"target_audience": ["18-24", 35]}}`)
	assert.Equal(t, "18-24, 35", *result.GlobalVirality.TargetAudience)

	result = coerceText(t, `{"global_virality": {}}`)
	assert.Nil(t, result.GlobalVirality.TargetAudience)
	assert.Nil(t, result.GlobalVirality.ViralityScore)

	_, err := CoerceAndValidate(ExtractJSON(`{"global_virality": {"target_audience": [{"age": 20}]}}`))
	assert.Equal(t, []string{"global_virality.target_audience"}, issuePaths(schemaIssues(t, err)))
}

func TestCoerce_ScalarCoercion(t *testing.T) {
	result := coerceText(t, `{
	  "file_info": {"duration_seconds": "12.5", "technical_specs": {"fps": 29.97, "audio_channels": "2", "resolution": "1080x1920"}},
	  "global_virality": {"virality_score": 9.0},
	  "timeline_segments": [{"engagement_mechanics": {"is_hook": "yes"}}, {"engagement_mechanics": {"is_hook": 0}}, {"engagement_mechanics": {}}]
	}`)

	assert.Equal(t, 12.5, *result.FileInfo.DurationSeconds)
	specs := result.FileInfo.TechnicalSpecs
	require.NotNil(t, specs)
	assert.Equal(t, 29.97, *specs.FPS)
	assert.Equal(t, 2, *specs.AudioChannels)
	assert.Equal(t, "1080x1920", *specs.Resolution)
	assert.Equal(t, 9, *result.GlobalVirality.ViralityScore)
	assert.True(t, result.TimelineSegments[0].EngagementMechanics.IsHook)
	assert.False(t, result.TimelineSegments[1].EngagementMechanics.IsHook)
	assert.False(t, result.TimelineSegments[2].EngagementMechanics.IsHook)
}

func TestCoerce_IssuesAreAccumulatedWithPaths(t *testing.T) {
	raw := `{
	  "file_info": {"technical_specs": {"fps": "fast"}},
	  "global_analysis": {"topics": ["a", 2], "summary": 5},
	  "global_virality": {"virality_score": 7.5},
	  "timeline_segments": [
	    "not an object",
	    {"visual_analysis": {"main_subjects": [{"label": 1}]}, "engagement_mechanics": {"is_hook": "maybe"}}
	  ],
	  "extracted_entities": {"actions_detected": [{"timestamp": 5}], "key_objects": "cup"}
	}`
	result, err := CoerceAndValidate(ExtractJSON(raw))
	assert.Nil(t, result)

	assert.ElementsMatch(t, []string{
		"file_info.technical_specs.fps",
		"global_analysis.topics[1]",
		"global_analysis.summary",
		"global_virality.virality_score",
		"timeline_segments[0]",
		"timeline_segments[1].visual_analysis.main_subjects[0].label",
		"timeline_segments[1].engagement_mechanics.is_hook",
		"extracted_entities.key_objects",
		"extracted_entities.actions_detected[0].action",
	}, issuePaths(schemaIssues(t, err)))
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestCoerce_ExtractedEntities(t *testing.T) {
	result := coerceText(t, `{"extracted_entities": {
	  "actions_detected": [{"action": "jump", "timestamp": 61}, {"action": "land", "timestamp": "01:02"}],
	  "key_objects": ["ball"]
	}}`)
	entities := result.ExtractedEntities
	require.NotNil(t, entities)
	assert.Equal(t, []models.ExtractedAction{
		{Action: "jump", Timestamp: "01:01"},
		{Action: "land", Timestamp: "01:02"},
	}, entities.ActionsDetected)
	assert.Equal(t, []string{"ball"}, entities.KeyObjects)
	assert.NotNil(t, entities.ReferencedLinks)
	assert.Empty(t, entities.ReferencedLinks)
}

func TestCoerce_DoesNotMutateInput(t *testing.T) {
	parsed := ExtractJSON(`{"timeline_segments": [{"segment_id": 7, "start": 1, "end": 2, "text_extraction_ocr": ["x"]}], "global_virality": {"target_audience": ["a"]}}`)
	before, err := json.Marshal(parsed)
	require.NoError(t, err)

	_, err = CoerceAndValidate(parsed)
	require.NoError(t, err)

	after, err := json.Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestCoerce_Idempotent(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"timeline_segments": [{"segment_id": 1, "start": 65, "end": 70, "text_extraction_ocr": ["a"]}]}`,
		`{
		  "file_info": {"video_id": "v1", "filename": "a.mp4", "processed_at": "2024-01-01T00:00:00Z", "duration_seconds": 30.5,
		                "technical_specs": {"resolution": "720p", "fps": 30, "audio_channels": 2}},
		  "global_analysis": {"title_detected": "T", "topics": ["x", "y"], "summary": "S", "overall_sentiment": "positive", "dominant_language": "en"},
		  "global_virality": {"virality_score": 6, "hook_strategy": "h", "target_audience": ["a", "b"], "share_trigger": "s"},
		  "timeline_segments": [{
		    "segment_id": "s1",
		    "time_range": {"start": 0, "end": 3725},
		    "classification": {"type": "hook", "topic": "intro"},
		    "visual_analysis": {"shot_type": "close-up", "camera_movement": "static",
		                        "main_subjects": [{"label": "host", "attributes": ["red shirt"], "action": "talks", "emotion": "happy"}],
		                        "environment": "studio"},
		    "audio_analysis": {"transcript": "hi", "speaker_id": "A", "bg_music": "lofi", "voice_intonation": "excited"},
		    "text_extraction_ocr": {"visible_text": ["HELLO"], "programming_language": null},
		    "engagement_mechanics": {"is_hook": true, "tactic": "question", "psychological_trigger": "curiosity"},
		    "ir_reconstruction": {"abstract_concept": "greeting", "generative_prompt": "a host waves"}
		  }],
		  "extracted_entities": {"actions_detected": [{"action": "wave", "timestamp": 1}], "key_objects": ["mic"], "referenced_links": ["https://example.com"]}
		}`,
	}
	for _, raw := range inputs {
		first := coerceText(t, raw)
		b, err := json.Marshal(first)
		require.NoError(t, err)
		second := coerceText(t, string(b))
		assert.Equal(t, first, second)
	}
}

func TestCoerce_UnknownFieldsIgnored(t *testing.T) {
	result := coerceText(t, `{"confidence": 0.9, "timeline_segments": [{"segment_id": "a", "mood": "calm"}]}`)
	require.Len(t, result.TimelineSegments, 1)
	assert.Equal(t, "a", *result.TimelineSegments[0].SegmentID)
}

func TestSchemaError_Message(t *testing.T) {
	err := &SchemaError{Issues: []Issue{
		{Path: "a", Message: "expected a string", Value: json.Number("3")},
		{Path: "b", Message: "field required"},
	}}
	assert.Equal(t, "schema validation failed: 2 issue(s): a: expected a string (got json.Number 3); b: field required", err.Error())
	assert.True(t, errors.Is(err, ErrSchemaValidation))
}

func TestCoerce_IntegerOutOfRange(t *testing.T) {
	for _, in := range []string{`1e20`, `-1e20`, `"1e20"`} {
		_, err := CoerceAndValidate(ExtractJSON(`{"global_virality": {"virality_score": ` + in + `}}`))
		issues := schemaIssues(t, err)
		require.Len(t, issues, 1, in)
		assert.Equal(t, "global_virality.virality_score", issues[0].Path)
		assert.Equal(t, "integer out of range", issues[0].Message)
	}
}
