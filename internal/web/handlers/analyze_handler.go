package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"video-mastermind/internal/services"
	"video-mastermind/internal/storage/media"
)

// AnalyzeHandler 負責處理影片上傳分析請求 (multipart: video 檔案、選填 prompt 與 model 欄位)。
// 每個請求在逾時內同步完成，不保留任何狀態。
type AnalyzeHandler struct {
	analyzer  Analyzer
	maxUpload int64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAnalyzeHandler 建立一個 AnalyzeHandler 實例
func NewAnalyzeHandler(analyzer Analyzer, maxUploadMB int, timeout time.Duration, logger *zap.Logger) *AnalyzeHandler {
	if analyzer == nil {
		panic("AnalyzeHandler：Analyzer 不得為空")
	}
	return &AnalyzeHandler{
		analyzer:  analyzer,
		maxUpload: int64(maxUploadMB) << 20,
		timeout:   timeout,
		logger:    logger.Named("analyze-handler"),
	}
}

func (h *AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("requestID", RequestID(r.Context())))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, r, http.StatusRequestEntityTooLarge, "video exceeds upload limit", "BODY_TOO_LARGE")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error(), "BAD_REQUEST")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing 'video' file field", "BAD_REQUEST")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read uploaded video", "BAD_REQUEST")
		return
	}
	if len(data) == 0 {
		writeError(w, r, http.StatusBadRequest, "uploaded video is empty", "BAD_REQUEST")
		return
	}

	mimeType, err := media.MIMEType(header.Filename)
	if err != nil {
		mimeType = header.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "video/") {
			writeError(w, r, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_FORMAT")
			return
		}
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	logger.Info("收到影片分析請求", zap.String("video", header.Filename), zap.String("mime", mimeType), zap.Int("bytes", len(data)))
	report, err := h.analyzer.AnalyzeBytes(ctx, header.Filename, mimeType, data, r.FormValue("prompt"), r.FormValue("model"))
	if err != nil && !services.IsSchemaFailure(err) {
		logger.Error("影片分析失敗", zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, r, status, err.Error(), "MODEL_ERROR")
		return
	}
	writeReport(w, report, err)
}
