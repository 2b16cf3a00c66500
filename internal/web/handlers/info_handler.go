package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"video-mastermind/internal/schema"
)

type healthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	UptimeS  int64  `json:"uptime_s"`
}

func HealthHandler(provider, model string, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:   "ok",
			Provider: provider,
			Model:    model,
			UptimeS:  int64(time.Since(startTime).Seconds()),
		})
	}
}

// SchemaHandler 回傳報告的 JSON Schema。
func SchemaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/schema+json")
		w.Header().Set("X-Schema-Version", schema.Version)
		_, _ = w.Write(schema.JSON())
	}
}

type modelsResponse struct {
	Provider    string   `json:"provider"`
	Default     string   `json:"default"`
	VideoModels []string `json:"video_models"`
	Available   []string `json:"available,omitempty"`
}

// ModelsHandler 列出內建的影片模型清單；lister 不為 nil 時附上供應商的即時清單。
// 即時清單取得失敗只記錄警告。
func ModelsHandler(provider, defaultModel string, videoModels []string, lister ModelLister, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := modelsResponse{Provider: provider, Default: defaultModel, VideoModels: videoModels}
		if lister != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
			defer cancel()
			available, err := lister.ListModels(ctx)
			if err != nil {
				logger.Warn("取得供應商模型清單失敗", zap.Error(err), zap.String("requestID", RequestID(r.Context())))
			} else {
				resp.Available = available
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
