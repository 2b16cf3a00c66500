package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"video-mastermind/internal/analysis"
	"video-mastermind/internal/clients/gemini"
	"video-mastermind/internal/clients/openrouter"
	"video-mastermind/internal/config"
	applog "video-mastermind/internal/log"
	"video-mastermind/internal/prompts"
	"video-mastermind/internal/report"
	"video-mastermind/internal/services"
	"video-mastermind/internal/storage/media"
)

const (
	formatSummary = "summary"
	formatJSON    = "json"
	formatCSV     = "csv"
)

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// options 是所有指令共用的旗標。與設定鍵對應的旗標由 config.BindFlags 綁定。
type options struct {
	configFile   string
	subtitleFile string
	format       string
}

func newFlagSet(name string, e *env) (*pflag.FlagSet, *options) {
	opts := &options{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&opts.configFile, "config", "./configs/config.yaml", "設定檔路徑")
	fs.StringVar(&opts.format, "format", formatSummary, "輸出格式: summary|json|csv")
	fs.StringVar(&opts.subtitleFile, "subtitle-file", "", "字幕或逐字稿檔案 (reveng 未指定時自動尋找同名檔案)")
	fs.String("provider", config.ProviderGemini, "模型供應商: gemini|openrouter")
	fs.String("model", "", "覆寫供應商的預設模型")
	fs.Bool("repair-json", false, "解析失敗時嘗試修復模型輸出的 JSON")
	fs.String("prompt-version", "", "影片分析 Prompt 版本")
	fs.String("log-level", "info", "日誌等級")
	fs.String("log-file", "", "額外寫入 JSON 日誌的檔案")
	return fs, opts
}

// app 是一次指令執行所需的依賴。
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	prompts *prompts.Library
	media   *media.FileSystemStorage
}

func setup(fs *pflag.FlagSet, opts *options) (*app, error) {
	switch opts.format {
	case formatSummary, formatJSON, formatCSV:
	default:
		return nil, fmt.Errorf("不支援的輸出格式 %q", opts.format)
	}
	dir, file := filepath.Split(opts.configFile)
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir, name, fs)
	if err != nil {
		return nil, fmt.Errorf("無法載入設定: %w", err)
	}
	logger, err := applog.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("無法初始化日誌: %w", err)
	}
	lib, err := prompts.NewLibrary(cfg.Prompts, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, prompts: lib, media: media.NewFileSystemStorage(logger)}, nil
}

// videoModel 依設定建立模型客戶端。回傳的 close 必須呼叫。
func (a *app) videoModel(ctx context.Context) (services.VideoModel, func(), error) {
	model := a.cfg.ModelFor(a.cfg.Analysis.Provider)
	switch a.cfg.Analysis.Provider {
	case config.ProviderOpenRouter:
		c, err := openrouter.NewClient(a.cfg.OpenRouter.APIKey, a.cfg.OpenRouter.BaseURL, model, a.cfg.OpenRouter.Timeout, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	default:
		c, err := gemini.NewClient(ctx, a.cfg.Gemini.APIKey, model, a.cfg.Gemini.InlineLimitMB, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("關閉 Gemini 客戶端失敗", zap.Error(err))
			}
		}, nil
	}
}

func (a *app) service(model services.VideoModel) (*services.AnalyzeService, error) {
	return services.NewAnalyzeService(a.cfg, model, a.media, a.prompts, a.logger)
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func exitCodeFor(outcome analysis.Outcome) int {
	switch outcome {
	case analysis.OutcomeParseFailure:
		return exitParseFailure
	case analysis.OutcomeSchemaFailure:
		return exitSchemaFailure
	default:
		return exitOK
	}
}

// printReport 依格式輸出報告並回傳結束碼。驗證失敗時 json 格式仍輸出完整紀錄。
func printReport(e *env, format string, rep *services.Report, err error) int {
	if rep == nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	code := exitCodeFor(rep.Outcome)
	if format == formatJSON {
		if werr := writeJSON(e.stdout, rep); werr != nil {
			fmt.Fprintf(e.stderr, "錯誤：%v\n", werr)
			return exitError
		}
		return code
	}
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		var schemaErr *analysis.SchemaError
		if errors.As(err, &schemaErr) {
			for _, issue := range schemaErr.Issues {
				fmt.Fprintf(e.stderr, "  - %s\n", issue)
			}
		}
		return code
	}
	var werr error
	if format == formatCSV {
		werr = report.WriteSegmentsCSV(e.stdout, rep.Result)
	} else {
		werr = report.WriteSummary(e.stdout, rep.Result)
	}
	if werr != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", werr)
		return exitError
	}
	return code
}
