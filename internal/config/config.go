package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// PromptVersions 一組可切換版本的 Prompt。versions 中找不到 currentVersion 時使用內建 Prompt。
type PromptVersions struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

type PromptConfig struct {
	VideoAnalysis      PromptVersions `mapstructure:"videoAnalysis"`
	ReverseEngineering PromptVersions `mapstructure:"reverseEngineering"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type GeminiClientConfig struct {
	APIKey        string `mapstructure:"apiKey"`
	Model         string `mapstructure:"model"`
	InlineLimitMB int    `mapstructure:"inlineLimitMB"`
}

type OpenRouterClientConfig struct {
	APIKey  string        `mapstructure:"apiKey"`
	BaseURL string        `mapstructure:"baseURL"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnalysisConfig 控制一次分析使用的供應商與解析選項。Model 不為空時覆寫供應商的預設模型。
type AnalysisConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	RepairJSON   bool   `mapstructure:"repairJSON"`
	TargetEngine string `mapstructure:"targetEngine"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadMB    int           `mapstructure:"maxUploadMB"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

type Config struct {
	AppName    string                 `mapstructure:"appName"`
	Log        LogConfig              `mapstructure:"log"`
	Gemini     GeminiClientConfig     `mapstructure:"gemini"`
	OpenRouter OpenRouterClientConfig `mapstructure:"openRouter"`
	Analysis   AnalysisConfig         `mapstructure:"analysis"`
	Prompts    PromptConfig           `mapstructure:"prompts"`
	Server     ServerConfig           `mapstructure:"server"`
}

// ModelFor 回傳指定供應商實際使用的模型名稱。
func (c *Config) ModelFor(provider string) string {
	if c.Analysis.Model != "" {
		return c.Analysis.Model
	}
	if provider == ProviderOpenRouter {
		return c.OpenRouter.Model
	}
	return c.Gemini.Model
}

// flagKeys 將 CLI 旗標對應到設定鍵。
var flagKeys = map[string]string{
	"provider":       "analysis.provider",
	"model":          "analysis.model",
	"repair-json":    "analysis.repairJSON",
	"target-engine":  "analysis.targetEngine",
	"prompt-version": "prompts.videoAnalysis.currentVersion",
	"log-level":      "log.level",
	"log-file":       "log.file",
	"addr":           "server.addr",
}

// BindFlags 將 flags 中存在的旗標綁定到對應的設定鍵；未設定的旗標不會覆寫設定檔。
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("綁定旗標 --%s 失敗: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appName", "video-mastermind")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.inlineLimitMB", 20)
	v.SetDefault("openRouter.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("openRouter.model", "google/gemini-2.5-flash")
	v.SetDefault("openRouter.timeout", 300*time.Second)
	v.SetDefault("analysis.provider", ProviderGemini)
	v.SetDefault("analysis.model", "")
	v.SetDefault("analysis.repairJSON", false)
	v.SetDefault("analysis.targetEngine", "Kling AI v1.5")
	v.SetDefault("prompts.videoAnalysis.currentVersion", "mastermind-v2")
	v.SetDefault("prompts.reverseEngineering.currentVersion", "reveng-v1")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.maxUploadMB", 200)
	v.SetDefault("server.requestTimeout", 10*time.Minute)
}

// Load 依序讀取 .env、設定檔、環境變數與 CLI 旗標 (後者優先)。flags 可為 nil。
func Load(configPath string, configName string, flags *pflag.FlagSet) (*Config, error) {
	// .env 不存在時忽略
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API Key 沿用常見的環境變數名稱
	if err := v.BindEnv("gemini.apiKey", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("綁定環境變數失敗: %w", err)
	}
	if err := v.BindEnv("openRouter.apiKey", "OPENROUTER_API_KEY"); err != nil {
		return nil, fmt.Errorf("綁定環境變數失敗: %w", err)
	}

	setDefaults(v)

	if err := BindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 檢查不依賴外部服務的設定。API Key 在建立對應 client 時才檢查。
func (c *Config) Validate() error {
	switch c.Analysis.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		return fmt.Errorf("不支援的供應商 %q (可用: %s, %s)", c.Analysis.Provider, ProviderGemini, ProviderOpenRouter)
	}
	if c.Gemini.InlineLimitMB <= 0 {
		return fmt.Errorf("gemini.inlineLimitMB 必須大於 0，目前為 %d", c.Gemini.InlineLimitMB)
	}
	if c.OpenRouter.Timeout <= 0 {
		return fmt.Errorf("openRouter.timeout 必須大於 0")
	}
	return nil
}
