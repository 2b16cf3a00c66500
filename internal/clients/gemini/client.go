package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"video-mastermind/internal/models"
)

const ProviderName = "gemini"

var (
	ErrMissingAPIKey = errors.New("Gemini API Key 不得為空")
	ErrEmptyResponse = errors.New("Gemini API 回應無效或為空")
	ErrBlocked       = errors.New("Gemini API 回應內容被阻止")
	ErrFileFailed    = errors.New("Gemini File API 處理影片失敗")
)

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// fileService 是 File API 中會用到的部分，*genai.Client 已實作。
type fileService interface {
	UploadFile(ctx context.Context, name string, r io.Reader, opts *genai.UploadFileOptions) (*genai.File, error)
	GetFile(ctx context.Context, name string) (*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
}

// Client 結構用於與 Gemini API 互動
type Client struct {
	sdk          *genai.Client
	files        fileService
	newModel     func(name string) generator
	defaultModel string
	inlineLimit  int
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewClient 建立一個 Gemini 客戶端實例。
// 影片小於 inlineLimitMB 時直接內嵌在請求中，否則先透過 File API 上傳。
func NewClient(ctx context.Context, apiKey, modelName string, inlineLimitMB int, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	logger = logger.Named("gemini")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
		logger.Warn("未提供影片分析模型名稱，使用預設值", zap.String("model", modelName))
	}

	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("無法建立 Gemini GenAI SDK 客戶端: %w", err)
	}

	c := newClient(sdk, func(name string) generator {
		model := sdk.GenerativeModel(name)
		model.ResponseMIMEType = "application/json"
		return model
	}, modelName, inlineLimitMB, logger)
	c.sdk = sdk
	logger.Info("影片分析模型初始化成功", zap.String("model", modelName), zap.Int("inlineLimitMB", inlineLimitMB))
	return c, nil
}

func newClient(files fileService, newModel func(string) generator, modelName string, inlineLimitMB int, logger *zap.Logger) *Client {
	return &Client{
		files:        files,
		newModel:     newModel,
		defaultModel: modelName,
		inlineLimit:  inlineLimitMB << 20,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

func (c *Client) Close() error {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func (c *Client) Name() string {
	return ProviderName
}

// GenerateFromVideo 向 Gemini API 發送影片和提示，回傳模型的原始文字。
func (c *Client) GenerateFromVideo(ctx context.Context, req models.VideoRequest) (*models.ModelReply, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("影片分析的 Prompt 不得為空")
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("影片 '%s' 內容為空", req.Name)
	}
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	logger := c.logger.With(zap.String("video", req.Name), zap.String("model", modelName))
	logger.Info("開始分析影片", zap.String("mime", req.MIMEType), zap.Int("bytes", len(req.Data)), zap.String("prompt", firstNChars(req.Prompt, 100)))

	videoPart, cleanup, err := c.videoPart(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.Info("正在向 Gemini API 發送請求")
	resp, err := c.newModel(modelName).GenerateContent(ctx, genai.Text(req.Prompt), videoPart)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			c.logBlocked(logger, blocked)
			return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		return nil, fmt.Errorf("Gemini API 影片分析 GenerateContent 失敗: %w", err)
	}

	text, err := c.responseText(resp, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("收到 API 的原始文字回應", zap.Int("length", len(text)))
	logger.Debug("原始文字回應", zap.String("text", text))

	reply := &models.ModelReply{Provider: ProviderName, Model: modelName, Text: text}
	if resp.UsageMetadata != nil {
		reply.Usage = models.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if raw, err := json.Marshal(resp); err == nil {
		reply.Raw = raw
	}
	return reply, nil
}

// videoPart 小影片直接內嵌為 Blob；大影片上傳到 File API 並等待處理完成。
// 回傳的 cleanup 會刪除已上傳的檔案。
func (c *Client) videoPart(ctx context.Context, req models.VideoRequest, logger *zap.Logger) (genai.Part, func(), error) {
	if len(req.Data) <= c.inlineLimit {
		logger.Debug("影片以內嵌方式傳送")
		return genai.Blob{MIMEType: req.MIMEType, Data: req.Data}, func() {}, nil
	}

	logger.Info("影片超過內嵌上限，改用 File API 上傳", zap.Int("limitBytes", c.inlineLimit))
	file, err := c.files.UploadFile(ctx, "", bytes.NewReader(req.Data), &genai.UploadFileOptions{
		DisplayName: req.Name,
		MIMEType:    req.MIMEType,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("上傳影片到 Gemini File API 失敗: %w", err)
	}
	cleanup := func() {
		if err := c.files.DeleteFile(context.Background(), file.Name); err != nil {
			logger.Warn("刪除已上傳的影片失敗", zap.String("file", file.Name), zap.Error(err))
		}
	}

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			cleanup()
			return nil, nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		file, err = c.files.GetFile(ctx, file.Name)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("查詢 Gemini File API 檔案狀態失敗: %w", err)
		}
	}
	if file.State != genai.FileStateActive {
		cleanup()
		return nil, nil, fmt.Errorf("%w: '%s' 狀態為 %s", ErrFileFailed, file.Name, file.State)
	}

	logger.Info("影片上傳完成", zap.String("file", file.Name), zap.String("uri", file.URI))
	return genai.FileData{MIMEType: file.MIMEType, URI: file.URI}, cleanup, nil
}

func (c *Client) responseText(resp *genai.GenerateContentResponse, logger *zap.Logger) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("%w: prompt 被阻止，原因: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w (nil response or no candidates)", ErrEmptyResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			for _, rating := range candidate.SafetyRatings {
				logger.Warn("安全評級", zap.Any("category", rating.Category), zap.Any("probability", rating.Probability))
			}
			return "", fmt.Errorf("%w，原因: %s", ErrBlocked, candidate.FinishReason)
		}
		// 沒有內容時回傳空字串，交由解析階段產生錯誤信封
		logger.Warn("Gemini 回應沒有內容", zap.Any("finishReason", candidate.FinishReason))
		return "", nil
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			logger.Warn("收到非預期的 Part 類型", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		logger.Warn("Gemini 回傳的文字內容為空")
	}
	return text, nil
}

func (c *Client) logBlocked(logger *zap.Logger, blocked *genai.BlockedError) {
	if blocked.Candidate != nil {
		for _, rating := range blocked.Candidate.SafetyRatings {
			logger.Warn("安全評級", zap.Any("category", rating.Category), zap.Any("probability", rating.Probability))
		}
	}
	if blocked.PromptFeedback != nil {
		logger.Warn("prompt 被阻止", zap.Any("reason", blocked.PromptFeedback.BlockReason))
	}
}

// firstNChars 以 rune 為單位截斷，供日誌使用
func firstNChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
