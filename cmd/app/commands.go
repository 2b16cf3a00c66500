package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"video-mastermind/internal/clients/openrouter"
	"video-mastermind/internal/config"
	"video-mastermind/internal/report"
	"video-mastermind/internal/schema"
	"video-mastermind/internal/services"
	"video-mastermind/internal/web"
	"video-mastermind/internal/web/handlers"
)

type command func(ctx context.Context, args []string, e *env) int

var commands = map[string]command{
	"analyze":   analyzeCmd,
	"reveng":    revengCmd,
	"normalize": normalizeCmd,
	"schema":    schemaCmd,
	"models":    modelsCmd,
	"serve":     serveCmd,
}

func parse(name string, args []string, e *env, extra func(*pflag.FlagSet)) (*pflag.FlagSet, *options, bool) {
	fs, opts := newFlagSet(name, e)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, false
	}
	return fs, opts, true
}

func analyzeCmd(ctx context.Context, args []string, e *env) int {
	fs, opts, ok := parse("analyze", args, e, nil)
	if !ok {
		return exitError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.stderr, "用法: video-mastermind analyze <video|dir> [flags]")
		return exitError
	}
	a, err := setup(fs, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	defer a.close()

	model, closeModel, err := a.videoModel(ctx)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：初始化模型客戶端失敗: %v\n", err)
		return exitError
	}
	defer closeModel()
	svc, err := a.service(model)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}

	path := fs.Arg(0)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return analyzeDir(ctx, svc, path, opts.format, e)
	}
	rep, err := svc.AnalyzeVideo(ctx, path)
	return printReport(e, opts.format, rep, err)
}

// analyzeDir 輸出每支影片的結果；結束碼取所有影片中最嚴重的一個。
func analyzeDir(ctx context.Context, svc *services.AnalyzeService, dir, format string, e *env) int {
	results, err := svc.AnalyzeDirectory(ctx, dir)
	if err != nil && len(results) == 0 {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	if format == formatJSON {
		reports := make([]*services.Report, 0, len(results))
		for _, r := range results {
			if r.Report != nil {
				reports = append(reports, r.Report)
			}
		}
		if werr := writeJSON(e.stdout, reports); werr != nil {
			fmt.Fprintf(e.stderr, "錯誤：%v\n", werr)
			return exitError
		}
	}
	code := exitOK
	for _, r := range results {
		c := exitError
		if r.Report != nil {
			c = exitCodeFor(r.Report.Outcome)
		}
		if format != formatJSON {
			fmt.Fprintf(e.stdout, "== %s\n", r.Path)
			c = printReport(e, format, r.Report, r.Err)
		}
		if c > code {
			code = c
		}
	}
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	return code
}

func revengCmd(ctx context.Context, args []string, e *env) int {
	fs, opts, ok := parse("reveng", args, e, func(fs *pflag.FlagSet) {
		fs.String("target-engine", "", "目標影片生成引擎 (預設 Kling AI v1.5)")
	})
	if !ok {
		return exitError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.stderr, "用法: video-mastermind reveng <video> [--target-engine name] [--subtitle-file path]")
		return exitError
	}
	a, err := setup(fs, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	defer a.close()

	model, closeModel, err := a.videoModel(ctx)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：初始化模型客戶端失敗: %v\n", err)
		return exitError
	}
	defer closeModel()
	svc, err := a.service(model)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}

	rep, err := svc.ReverseEngineer(ctx, fs.Arg(0), a.cfg.Analysis.TargetEngine, opts.subtitleFile)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	if opts.format == formatJSON {
		if err := writeJSON(e.stdout, rep); err != nil {
			fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
			return exitError
		}
		return exitOK
	}
	if prompt, ok := report.FirstPositivePrompt(rep.Parsed); ok {
		fmt.Fprintf(e.stdout, "- First scene positive prompt:\n%s\n", prompt)
		return exitOK
	}
	fmt.Fprintln(e.stdout, "- No scenes returned from reverse-engineering call.")
	return exitOK
}

func normalizeCmd(_ context.Context, args []string, e *env) int {
	fs, opts, ok := parse("normalize", args, e, nil)
	if !ok {
		return exitError
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(e.stderr, "用法: video-mastermind normalize [file|-]")
		return exitError
	}
	a, err := setup(fs, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	defer a.close()

	var data []byte
	if fs.NArg() == 0 || fs.Arg(0) == "-" {
		data, err = io.ReadAll(e.stdin)
	} else {
		data, err = os.ReadFile(fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：讀取模型輸出失敗: %v\n", err)
		return exitError
	}

	svc, err := a.service(nil)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	rep, err := svc.NormalizeText(string(data))
	return printReport(e, opts.format, rep, err)
}

func schemaCmd(_ context.Context, _ []string, e *env) int {
	if _, err := e.stdout.Write(schema.JSON()); err != nil {
		return exitError
	}
	return exitOK
}

// modelsCmd 列出內建的影片模型；供應商為 OpenRouter 且有 API Key 時改列出即時清單。
func modelsCmd(ctx context.Context, args []string, e *env) int {
	fs, opts, ok := parse("models", args, e, nil)
	if !ok {
		return exitError
	}
	a, err := setup(fs, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	defer a.close()

	ids := a.prompts.VideoModels()
	if a.cfg.Analysis.Provider == config.ProviderOpenRouter && a.cfg.OpenRouter.APIKey != "" {
		client, err := openrouter.NewClient(a.cfg.OpenRouter.APIKey, a.cfg.OpenRouter.BaseURL, a.cfg.OpenRouter.Model, a.cfg.OpenRouter.Timeout, a.logger)
		if err == nil {
			if live, err := client.ListModels(ctx); err == nil {
				ids = live
			} else {
				a.logger.Warn("取得 OpenRouter 模型清單失敗，改用內建清單", zap.Error(err))
			}
		}
	}
	if opts.format == formatJSON {
		if err := writeJSON(e.stdout, ids); err != nil {
			return exitError
		}
		return exitOK
	}
	for _, id := range ids {
		fmt.Fprintln(e.stdout, id)
	}
	return exitOK
}

func serveCmd(ctx context.Context, args []string, e *env) int {
	fs, opts, ok := parse("serve", args, e, func(fs *pflag.FlagSet) {
		fs.String("addr", ":8080", "HTTP 監聽位址")
	})
	if !ok {
		return exitError
	}
	a, err := setup(fs, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "錯誤：%v\n", err)
		return exitError
	}
	defer a.close()

	model, closeModel, err := a.videoModel(ctx)
	if err != nil {
		a.logger.Error("初始化模型客戶端失敗", zap.Error(err))
		return exitError
	}
	defer closeModel()
	svc, err := a.service(model)
	if err != nil {
		a.logger.Error("初始化影片分析服務失敗", zap.Error(err))
		return exitError
	}

	var lister handlers.ModelLister
	if c, ok := model.(*openrouter.Client); ok {
		lister = c
	}
	router := web.SetupRouter(web.RouterConfig{
		Analyzer:       svc,
		Lister:         lister,
		Provider:       a.cfg.Analysis.Provider,
		Model:          a.cfg.ModelFor(a.cfg.Analysis.Provider),
		VideoModels:    a.prompts.VideoModels(),
		MaxUploadMB:    a.cfg.Server.MaxUploadMB,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		StartTime:      time.Now(),
		Logger:         a.logger,
	})
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP 伺服器正在監聽", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("HTTP 伺服器監聽失敗", zap.Error(err))
			return exitError
		}
	case <-ctx.Done():
	}

	a.logger.Info("收到關閉訊號，正在關閉 HTTP 伺服器")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP 伺服器優雅關閉失敗", zap.Error(err))
		return exitError
	}
	a.logger.Info("HTTP 伺服器已關閉")
	return exitOK
}
