package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"video-mastermind/internal/analysis"
	"video-mastermind/internal/config"
	"video-mastermind/internal/models"
	"video-mastermind/internal/prompts"
)

// Report 是一次分析的完整紀錄：模型原始文字、解析後的值與驗證後的報告。
// 驗證失敗時 Result 為 nil，Outcome 說明失敗的階段。
type Report struct {
	RunID         string                  `json:"run_id"`
	Video         string                  `json:"video,omitempty"`
	Provider      string                  `json:"provider,omitempty"`
	Model         string                  `json:"model,omitempty"`
	PromptVersion string                  `json:"prompt_version,omitempty"`
	Text          string                  `json:"raw_text"`
	Parsed        any                     `json:"parsed"`
	Result        *models.AnalysisResult  `json:"result"`
	Usage         models.Usage            `json:"usage"`
	UnknownFields []analysis.UnknownField `json:"unknown_fields,omitempty"`
	Outcome       analysis.Outcome        `json:"outcome"`
	Error         string                  `json:"error,omitempty"`
}

// ReverseReport 是逆向工程流程的結果；Parsed 為模型輸出的原始 JSON 值，不做結構驗證。
type ReverseReport struct {
	RunID         string       `json:"run_id"`
	Video         string       `json:"video"`
	Provider      string       `json:"provider"`
	Model         string       `json:"model"`
	PromptVersion string       `json:"prompt_version"`
	TargetEngine  string       `json:"target_engine"`
	Subtitle      string       `json:"subtitle_file,omitempty"`
	Text          string       `json:"raw_text"`
	Parsed        any          `json:"parsed"`
	Usage         models.Usage `json:"usage"`
}

// AnalyzeService 結構
type AnalyzeService struct {
	model        VideoModel
	media        MediaStorage
	prompts      *prompts.Library
	extractOpts  []analysis.ExtractOption
	targetEngine string
	logger       *zap.Logger
}

// NewAnalyzeService 建立 AnalyzeService 實例。model 可為 nil，此時只能使用 NormalizeText。
func NewAnalyzeService(cfg *config.Config, model VideoModel, media MediaStorage, lib *prompts.Library, logger *zap.Logger) (*AnalyzeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AnalyzeService：設定不得為空")
	}
	if media == nil {
		return nil, fmt.Errorf("AnalyzeService：MediaStorage 不得為空")
	}
	if lib == nil {
		return nil, fmt.Errorf("AnalyzeService：Prompt 不得為空")
	}
	s := &AnalyzeService{
		model:        model,
		media:        media,
		prompts:      lib,
		targetEngine: cfg.Analysis.TargetEngine,
		logger:       logger.Named("analyze"),
	}
	if cfg.Analysis.RepairJSON {
		s.extractOpts = append(s.extractOpts, analysis.WithJSONRepair())
	}
	s.logger.Info("AnalyzeService 初始化完成", zap.Bool("repairJSON", cfg.Analysis.RepairJSON), zap.String("provider", s.providerName()))
	return s, nil
}

func (s *AnalyzeService) providerName() string {
	if s.model == nil {
		return ""
	}
	return s.model.Name()
}

func (s *AnalyzeService) requireModel() error {
	if s.model == nil {
		return fmt.Errorf("AnalyzeService：未設定模型供應商")
	}
	return nil
}

// AnalyzeVideo 讀取影片、呼叫模型並將回應正規化為 AnalysisResult。
// 驗證失敗時仍回傳 Report (含原始文字與解析值) 與 *analysis.SchemaError。
func (s *AnalyzeService) AnalyzeVideo(ctx context.Context, path string) (*Report, error) {
	if err := s.requireModel(); err != nil {
		return nil, err
	}
	video, err := s.media.ReadVideo(path)
	if err != nil {
		return nil, err
	}
	prompt, version := s.prompts.Analysis()
	s.logger.Info("使用 VideoAnalysis Prompt 版本", zap.String("version", version))
	return s.analyze(ctx, models.VideoRequest{
		Name:     video.Name,
		MIMEType: video.MIMEType,
		Data:     video.Data,
		Prompt:   prompt,
	}, version)
}

// AnalyzeBytes 分析已在記憶體中的影片 (例如 HTTP 上傳)。prompt 不為空時取代設定的 Prompt，model 不為空時覆寫預設模型。
func (s *AnalyzeService) AnalyzeBytes(ctx context.Context, name, mimeType string, data []byte, prompt, model string) (*Report, error) {
	if err := s.requireModel(); err != nil {
		return nil, err
	}
	version := prompts.CustomVersion
	if strings.TrimSpace(prompt) == "" {
		prompt, version = s.prompts.Analysis()
	}
	return s.analyze(ctx, models.VideoRequest{
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
		Prompt:   prompt,
		Model:    model,
	}, version)
}

func (s *AnalyzeService) analyze(ctx context.Context, req models.VideoRequest, promptVersion string) (*Report, error) {
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("runID", runID), zap.String("video", req.Name))

	reply, err := s.model.GenerateFromVideo(ctx, req)
	if err != nil {
		logger.Error("模型分析影片失敗", zap.Error(err))
		return nil, fmt.Errorf("%s 分析影片 '%s' 失敗: %w", s.model.Name(), req.Name, err)
	}

	report, err := s.normalize(runID, reply.Text, logger)
	report.Video = req.Name
	report.Provider = reply.Provider
	report.Model = reply.Model
	report.PromptVersion = promptVersion
	report.Usage = reply.Usage
	return report, err
}

// NormalizeText 只執行擷取與驗證，不呼叫任何模型。
func (s *AnalyzeService) NormalizeText(raw string) (*Report, error) {
	runID := uuid.NewString()
	return s.normalize(runID, raw, s.logger.With(zap.String("runID", runID)))
}

func (s *AnalyzeService) normalize(runID, text string, logger *zap.Logger) (*Report, error) {
	n := analysis.Normalize(text, s.extractOpts...)
	report := &Report{
		RunID:   runID,
		Text:    text,
		Parsed:  n.Parsed,
		Result:  n.Result,
		Outcome: n.Outcome(),
	}

	if failure, ok := n.ParseFailure(); ok {
		logger.Warn("模型輸出不是有效的 JSON", zap.Int("length", len(text)), zap.Error(failure))
	}
	report.UnknownFields = analysis.UnknownFields(n.Parsed)
	for _, field := range report.UnknownFields {
		logger.Info("忽略未知欄位", zap.String("path", field.Path), zap.String("suggestion", field.Suggestion))
	}
	if n.Err != nil {
		report.Error = n.Err.Error()
		logger.Warn("報告結構驗證失敗", zap.Error(n.Err))
		return report, n.Err
	}

	hooks := lo.CountBy(n.Result.TimelineSegments, func(seg models.TimelineSegment) bool {
		return seg.EngagementMechanics != nil && seg.EngagementMechanics.IsHook
	})
	logger.Info("報告驗證成功", zap.Int("segments", len(n.Result.TimelineSegments)), zap.Int("hooks", hooks))
	return report, nil
}

// ReverseEngineer 以逆向工程 Prompt 分析影片，回傳模型輸出的 JSON 值 (可能是解析失敗的信封)。
// subtitlePath 為空時自動尋找同名字幕檔。
func (s *AnalyzeService) ReverseEngineer(ctx context.Context, path, targetEngine, subtitlePath string) (*ReverseReport, error) {
	if err := s.requireModel(); err != nil {
		return nil, err
	}
	video, err := s.media.ReadVideo(path)
	if err != nil {
		return nil, err
	}
	if subtitlePath == "" {
		if found, ok := s.media.FindSubtitle(video.Path); ok {
			subtitlePath = found
		}
	}
	var subtitle string
	if subtitlePath != "" {
		if subtitle, err = s.media.ReadSubtitle(subtitlePath); err != nil {
			return nil, err
		}
	}
	if targetEngine == "" {
		targetEngine = s.targetEngine
	}
	if targetEngine == "" {
		targetEngine = s.prompts.DefaultTargetEngine()
	}
	prompt, version := s.prompts.ReverseEngineering(targetEngine, subtitle)

	runID := uuid.NewString()
	logger := s.logger.With(zap.String("runID", runID), zap.String("video", video.Name))
	logger.Info("開始逆向工程分析", zap.String("targetEngine", targetEngine), zap.String("subtitle", subtitlePath), zap.String("version", version))

	reply, err := s.model.GenerateFromVideo(ctx, models.VideoRequest{
		Name:     video.Name,
		MIMEType: video.MIMEType,
		Data:     video.Data,
		Prompt:   prompt,
	})
	if err != nil {
		logger.Error("模型逆向工程分析失敗", zap.Error(err))
		return nil, fmt.Errorf("%s 逆向工程分析 '%s' 失敗: %w", s.model.Name(), video.Name, err)
	}

	parsed := analysis.ExtractJSON(reply.Text, s.extractOpts...)
	if failure, ok := analysis.AsParseFailure(parsed); ok {
		logger.Warn("逆向工程輸出不是有效的 JSON", zap.Error(failure))
	}
	return &ReverseReport{
		RunID:         runID,
		Video:         video.Name,
		Provider:      reply.Provider,
		Model:         reply.Model,
		PromptVersion: version,
		TargetEngine:  targetEngine,
		Subtitle:      subtitlePath,
		Text:          reply.Text,
		Parsed:        parsed,
		Usage:         reply.Usage,
	}, nil
}

// DirectoryResult 是批次分析中單一影片的結果。Err 不為空時 Report 可能為 nil (讀檔或模型錯誤)。
type DirectoryResult struct {
	Path   string
	Report *Report
	Err    error
}

// AnalyzeDirectory 依序分析 dir 底下所有影片。單一影片失敗不會中斷整個流程。
func (s *AnalyzeService) AnalyzeDirectory(ctx context.Context, dir string) ([]DirectoryResult, error) {
	if err := s.requireModel(); err != nil {
		return nil, err
	}
	files, err := s.media.ScanVideos(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.logger.Info("目錄中沒有可分析的影片", zap.String("dir", dir))
		return nil, nil
	}
	s.logger.Info("找到影片準備進行內容分析", zap.String("dir", dir), zap.Int("count", len(files)))

	results := make([]DirectoryResult, 0, len(files))
	var successCount, failCount int
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		report, err := s.AnalyzeVideo(ctx, file.Path)
		results = append(results, DirectoryResult{Path: file.Path, Report: report, Err: err})
		if err != nil {
			s.logger.Error("影片內容分析失敗", zap.String("path", file.Path), zap.Error(err))
			failCount++
			continue
		}
		successCount++
	}
	s.logger.Info("影片內容分析流程完成", zap.Int("success", successCount), zap.Int("failed", failCount))
	return results, nil
}

// IsSchemaFailure 判斷錯誤是否為報告結構驗證失敗 (而非讀檔或模型錯誤)。
func IsSchemaFailure(err error) bool {
	return errors.Is(err, analysis.ErrSchemaValidation)
}
