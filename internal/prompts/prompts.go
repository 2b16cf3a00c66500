// Package prompts 管理送給模型的 Prompt：內建版本來自 prompts.toml，設定檔可覆寫或新增版本。
package prompts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"video-mastermind/internal/config"
)

//go:embed prompts.toml
var builtinTOML string

const (
	targetEnginePlaceholder    = "{{TARGET_ENGINE}}"
	subtitleContextPlaceholder = "{{SUBTITLE_CONTEXT}}"

	// CustomVersion 是呼叫端直接提供 Prompt 時記錄的版本名稱。
	CustomVersion = "custom"
)

type Prompt struct {
	Description string `toml:"description"`
	Text        string `toml:"text"`
}

type library struct {
	DefaultAnalysis           string            `toml:"default_analysis"`
	DefaultReverseEngineering string            `toml:"default_reverse_engineering"`
	DefaultTargetEngine       string            `toml:"default_target_engine"`
	VideoModels               []string          `toml:"video_models"`
	Analysis                  map[string]Prompt `toml:"analysis"`
	ReverseEngineering        map[string]Prompt `toml:"reverse_engineering"`
}

func parseBuiltin() (*library, error) {
	var lib library
	meta, err := toml.Decode(builtinTOML, &lib)
	if err != nil {
		return nil, fmt.Errorf("解析內建 Prompt 失敗: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("內建 Prompt 含有未知欄位: %v", undecoded)
	}
	if _, ok := lib.Analysis[lib.DefaultAnalysis]; !ok {
		return nil, fmt.Errorf("內建 Prompt 缺少預設分析版本 %q", lib.DefaultAnalysis)
	}
	if _, ok := lib.ReverseEngineering[lib.DefaultReverseEngineering]; !ok {
		return nil, fmt.Errorf("內建 Prompt 缺少預設逆向工程版本 %q", lib.DefaultReverseEngineering)
	}
	return &lib, nil
}

// Library 依設定解析目前使用的 Prompt 版本。
type Library struct {
	builtin            *library
	analysis           config.PromptVersions
	reverseEngineering config.PromptVersions
	logger             *zap.Logger
}

func NewLibrary(cfg config.PromptConfig, logger *zap.Logger) (*Library, error) {
	builtin, err := parseBuiltin()
	if err != nil {
		return nil, err
	}
	return &Library{
		builtin:            builtin,
		analysis:           cfg.VideoAnalysis,
		reverseEngineering: cfg.ReverseEngineering,
		logger:             logger.Named("prompts"),
	}, nil
}

// resolve 依序查找設定檔版本與內建版本；都找不到時退回內建預設版本。
func (l *Library) resolve(kind string, versions config.PromptVersions, builtin map[string]Prompt, fallback string) (string, string) {
	version := strings.ToLower(strings.TrimSpace(versions.CurrentVersion))
	if version == "" {
		version = fallback
	}
	// viper 會將 map 的鍵轉為小寫
	if text, ok := versions.Versions[version]; ok && strings.TrimSpace(text) != "" {
		return text, version
	}
	if p, ok := builtin[version]; ok {
		return p.Text, version
	}
	l.logger.Warn("找不到指定的 Prompt 版本，改用內建預設",
		zap.String("kind", kind), zap.String("version", version), zap.String("fallback", fallback))
	return builtin[fallback].Text, fallback
}

// Analysis 回傳目前設定的影片分析 Prompt 與其版本。
func (l *Library) Analysis() (text, version string) {
	return l.resolve("videoAnalysis", l.analysis, l.builtin.Analysis, l.builtin.DefaultAnalysis)
}

// ReverseEngineering 回傳填入目標引擎與字幕內容後的逆向工程 Prompt。
// targetEngine 為空時使用預設引擎。
func (l *Library) ReverseEngineering(targetEngine, subtitleContext string) (text, version string) {
	template, version := l.resolve("reverseEngineering", l.reverseEngineering, l.builtin.ReverseEngineering, l.builtin.DefaultReverseEngineering)
	if strings.TrimSpace(targetEngine) == "" {
		targetEngine = l.builtin.DefaultTargetEngine
	}
	return Render(template, targetEngine, subtitleContext), version
}

// DefaultTargetEngine 回傳內建的預設目標引擎名稱。
func (l *Library) DefaultTargetEngine() string {
	return l.builtin.DefaultTargetEngine
}

// VideoModels 回傳 OpenRouter 上支援影片輸入的模型清單。
func (l *Library) VideoModels() []string {
	return append([]string(nil), l.builtin.VideoModels...)
}

// Versions 列出所有可用的分析 Prompt 版本 (內建與設定檔)，已排序。
func (l *Library) Versions() []string {
	seen := map[string]bool{}
	for name := range l.builtin.Analysis {
		seen[name] = true
	}
	for name := range l.analysis.Versions {
		seen[name] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render 填入佔位符，之後將範本中跳脫的 {{ 與 }} 還原為單一大括號。
// 填入的內容本身不會被還原。
func Render(template, targetEngine, subtitleContext string) string {
	r := strings.NewReplacer(
		targetEnginePlaceholder, targetEngine,
		subtitleContextPlaceholder, subtitleContext,
		"{{", "{",
		"}}", "}",
	)
	return r.Replace(template)
}
