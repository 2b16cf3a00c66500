package openrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"video-mastermind/internal/models"
)

const (
	ProviderName   = "openrouter"
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 300 * time.Second

	partTypeVideoURL = "video_url"
)

var (
	ErrMissingAPIKey = errors.New("OPENROUTER_API_KEY 未設定")
	ErrMissingModel  = errors.New("OpenRouter 模型名稱不得為空")
)

// APIError 是 OpenRouter 回傳的非 2xx 回應。
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("OpenRouter API 回傳 %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("OpenRouter API 回傳 %d", e.StatusCode)
}

type videoURL struct {
	URL string `json:"url"`
}

// contentPart 是 OpenAI 相容訊息的內容片段；OpenRouter 另外支援 video_url。
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	VideoURL *videoURL `json:"video_url,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// usageCost 取出 OpenRouter 在 usage 中額外提供的費用。
type usageCost struct {
	Usage struct {
		Cost float64 `json:"cost"`
	} `json:"usage"`
}

// Client 透過 OpenRouter 呼叫支援影片輸入的模型
type Client struct {
	http         *resty.Client
	models       *openai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewClient(apiKey, baseURL, modelName string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	openaiCfg := openai.DefaultConfig(apiKey)
	openaiCfg.BaseURL = baseURL
	openaiCfg.HTTPClient = &http.Client{Timeout: timeout}

	logger = logger.Named("openrouter")
	logger.Info("OpenRouter 客戶端初始化成功", zap.String("baseURL", baseURL), zap.String("model", modelName), zap.Duration("timeout", timeout))
	return &Client{
		http:         httpClient,
		models:       openai.NewClientWithConfig(openaiCfg),
		defaultModel: modelName,
		logger:       logger,
	}, nil
}

func (c *Client) Name() string {
	return ProviderName
}

// EncodeDataURL 將影片編碼為 base64 data URL。
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// GenerateFromVideo 送出文字加影片的單一使用者訊息，回傳第一段文字回應。
// 回應沒有文字時 Text 為空字串，由後續的解析步驟處理。
func (c *Client) GenerateFromVideo(ctx context.Context, req models.VideoRequest) (*models.ModelReply, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	if modelName == "" {
		return nil, ErrMissingModel
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("影片 '%s' 內容為空", req.Name)
	}
	logger := c.logger.With(zap.String("video", req.Name), zap.String("model", modelName))

	payload := chatRequest{
		Model: modelName,
		Messages: []chatMessage{{
			Role: openai.ChatMessageRoleUser,
			Content: []contentPart{
				{Type: string(openai.ChatMessagePartTypeText), Text: req.Prompt},
				{Type: partTypeVideoURL, VideoURL: &videoURL{URL: EncodeDataURL(req.MIMEType, req.Data)}},
			},
		}},
	}

	logger.Info("正在向 OpenRouter 發送請求", zap.String("mime", req.MIMEType), zap.Int("bytes", len(req.Data)))
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("OpenRouter 請求失敗: %w", err)
	}
	body := resp.Body()
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: string(body)}
		var errResp openai.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			apiErr.Message = errResp.Error.Message
		}
		logger.Error("OpenRouter 回傳錯誤", zap.Int("status", apiErr.StatusCode), zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("無法解析 OpenRouter 回應: %w", err)
	}
	var cost usageCost
	if err := json.Unmarshal(body, &cost); err != nil {
		logger.Debug("無法解析 OpenRouter 用量費用", zap.Error(err))
	}

	text := firstText(completion)
	if text == "" {
		logger.Warn("OpenRouter 回應中沒有文字內容")
	}
	logger.Info("收到 OpenRouter 回應",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("length", len(text)),
		zap.Int("totalTokens", completion.Usage.TotalTokens),
		zap.Float64("cost", cost.Usage.Cost))

	if completion.Model != "" {
		modelName = completion.Model
	}
	return &models.ModelReply{
		Provider: ProviderName,
		Model:    modelName,
		Text:     text,
		Usage: models.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
			Cost:             cost.Usage.Cost,
		},
		Raw: json.RawMessage(body),
	}, nil
}

// firstText 取出第一個 choice 的文字：content 為字串時直接使用，為清單時取第一個非空的文字片段。
func firstText(completion openai.ChatCompletionResponse) string {
	if len(completion.Choices) == 0 {
		return ""
	}
	msg := completion.Choices[0].Message
	if msg.Content != "" {
		return msg.Content
	}
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// ListModels 列出 OpenRouter 上可用的模型 ID。
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.models.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("查詢 OpenRouter 模型清單失敗: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
