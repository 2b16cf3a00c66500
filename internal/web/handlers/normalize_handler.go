package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"video-mastermind/internal/analysis"
	"video-mastermind/internal/services"
)

// maxTextBytes 是 /normalize 與 /export/segments 可接受的最大文字長度。
const maxTextBytes = 16 << 20

type reportResponse struct {
	*services.Report
	Issues []analysis.Issue `json:"issues,omitempty"`
}

// writeReport 依分析結果決定狀態碼：成功 200，解析或驗證失敗 422 (附上問題清單)。
func writeReport(w http.ResponseWriter, report *services.Report, err error) {
	resp := reportResponse{Report: report}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	var schemaErr *analysis.SchemaError
	if errors.As(err, &schemaErr) {
		resp.Issues = schemaErr.Issues
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
		return "", false
	} else if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read request body", "BAD_REQUEST")
		return "", false
	}
	return string(body), true
}

// NormalizeHandler 將請求內容視為模型的原始輸出，執行擷取與驗證後回傳報告。
type NormalizeHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

func NewNormalizeHandler(analyzer Analyzer, logger *zap.Logger) *NormalizeHandler {
	return &NormalizeHandler{analyzer: analyzer, logger: logger.Named("normalize")}
}

func (h *NormalizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	text, ok := readText(w, r)
	if !ok {
		return
	}
	report, err := h.analyzer.NormalizeText(text)
	if err != nil && !services.IsSchemaFailure(err) {
		h.logger.Error("正規化失敗", zap.Error(err), zap.String("requestID", RequestID(r.Context())))
		writeError(w, r, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return
	}
	writeReport(w, report, err)
}
