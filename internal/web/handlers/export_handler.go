package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"video-mastermind/internal/analysis"
	"video-mastermind/internal/models"
	"video-mastermind/internal/report"
	"video-mastermind/internal/services"
)

// ExportHandler 將報告的片段匯出為 CSV。
// 請求內容可以是 /normalize、/analyze 回傳的報告 JSON，也可以是模型的原始輸出。
type ExportHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewExportHandler 建立一個 ExportHandler 實例
func NewExportHandler(analyzer Analyzer, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{analyzer: analyzer, logger: logger.Named("export")}
}

// ServeHTTP 實現 http.Handler 介面
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	text, ok := readText(w, r)
	if !ok {
		return
	}

	var result *models.AnalysisResult
	if runID, value, ok := storedReport(text); ok {
		// 已存的報告也要重新驗證，避免 result 形狀漂移時靜默輸出空白 CSV
		coerced, err := analysis.CoerceAndValidate(value)
		if err != nil {
			h.logger.Warn("報告中的 result 驗證失敗", zap.String("runID", runID), zap.Error(err))
			writeReport(w, &services.Report{
				RunID:   runID,
				Parsed:  value,
				Outcome: analysis.OutcomeSchemaFailure,
				Error:   err.Error(),
			}, err)
			return
		}
		result = coerced
	} else {
		rep, err := h.analyzer.NormalizeText(text)
		if err != nil {
			if services.IsSchemaFailure(err) {
				writeReport(w, rep, err)
				return
			}
			writeError(w, r, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		result = rep.Result
	}
	h.logger.Info("匯出片段", zap.Int("segments", len(result.TimelineSegments)), zap.String("requestID", RequestID(r.Context())))

	// 設定 CSV 檔案標頭
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=segments_%s.csv", time.Now().Format("2006-01-02")))
	if err := report.WriteSegmentsCSV(w, result); err != nil {
		h.logger.Error("寫入 CSV 失敗", zap.Error(err))
	}
}

// storedReport 辨識先前由本服務產生的報告 JSON (有 run_id 與非 null 的 result)，回傳未解碼的 result 值。
func storedReport(text string) (string, any, bool) {
	var stored struct {
		RunID  string          `json:"run_id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(text), &stored); err != nil {
		return "", nil, false
	}
	if stored.RunID == "" || len(stored.Result) == 0 || string(stored.Result) == "null" {
		return "", nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(stored.Result))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return "", nil, false
	}
	return stored.RunID, value, true
}
