package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"video-mastermind/internal/web/handlers"
)

// RouterConfig 是建立 HTTP 路由所需的依賴。Lister 可為 nil。
type RouterConfig struct {
	Analyzer       handlers.Analyzer
	Lister         handlers.ModelLister
	Provider       string
	Model          string
	VideoModels    []string
	MaxUploadMB    int
	RequestTimeout time.Duration
	StartTime      time.Time
	Logger         *zap.Logger
}

// SetupRouter 建立 chi 路由。每個請求都是獨立的一次分析，伺服器不保存結果。
func SetupRouter(cfg RouterConfig) http.Handler {
	if cfg.Analyzer == nil {
		panic("SetupRouter：Analyzer 不得為空")
	}
	logger := cfg.Logger.Named("http")

	r := chi.NewRouter()
	r.Use(handlers.RequestIDMiddleware())
	r.Use(handlers.RecoveryMiddleware(logger))
	r.Use(handlers.LoggingMiddleware(logger))

	r.Get("/healthz", handlers.HealthHandler(cfg.Provider, cfg.Model, cfg.StartTime))
	r.Get("/schema", handlers.SchemaHandler())
	r.Get("/models", handlers.ModelsHandler(cfg.Provider, cfg.Model, cfg.VideoModels, cfg.Lister, logger))

	r.Method(http.MethodPost, "/normalize", handlers.NewNormalizeHandler(cfg.Analyzer, logger))
	r.Method(http.MethodPost, "/analyze", handlers.NewAnalyzeHandler(cfg.Analyzer, cfg.MaxUploadMB, cfg.RequestTimeout, logger))
	r.Method(http.MethodPost, "/export/segments", handlers.NewExportHandler(cfg.Analyzer, logger))

	logger.Info("HTTP 路由設定完成")
	return r
}
