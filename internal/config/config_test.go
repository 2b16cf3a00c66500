package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "config", nil)
	require.NoError(t, err)

	assert.Equal(t, "video-mastermind", cfg.AppName)
	assert.Equal(t, ProviderGemini, cfg.Analysis.Provider)
	assert.Equal(t, "Kling AI v1.5", cfg.Analysis.TargetEngine)
	assert.False(t, cfg.Analysis.RepairJSON)
	assert.Equal(t, 20, cfg.Gemini.InlineLimitMB)
	assert.Equal(t, 300*time.Second, cfg.OpenRouter.Timeout)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "mastermind-v2", cfg.Prompts.VideoAnalysis.CurrentVersion)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := writeConfig(t, `
appName: demo
analysis:
  provider: openrouter
  targetEngine: Sora
openRouter:
  model: z-ai/glm-4.6v
  timeout: 30s
prompts:
  videoAnalysis:
    currentVersion: short
    versions:
      short: "Describe the video as JSON."
`)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("ANALYSIS_REPAIRJSON", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("target-engine", "", "")
	flags.String("model", "", "")
	require.NoError(t, flags.Parse([]string{"--target-engine", "Veo 3"}))

	cfg, err := Load(dir, "config", flags)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, ProviderOpenRouter, cfg.Analysis.Provider)
	assert.Equal(t, "Veo 3", cfg.Analysis.TargetEngine)
	assert.True(t, cfg.Analysis.RepairJSON)
	assert.Equal(t, "or-key", cfg.OpenRouter.APIKey)
	assert.Equal(t, "gm-key", cfg.Gemini.APIKey)
	assert.Equal(t, 30*time.Second, cfg.OpenRouter.Timeout)
	assert.Equal(t, "short", cfg.Prompts.VideoAnalysis.CurrentVersion)
	assert.Equal(t, "Describe the video as JSON.", cfg.Prompts.VideoAnalysis.Versions["short"])
	assert.Equal(t, "z-ai/glm-4.6v", cfg.ModelFor(ProviderOpenRouter))
}

func TestLoad_GoogleAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load(t.TempDir(), "config", nil)
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.Gemini.APIKey)
}

func TestLoad_InvalidProvider(t *testing.T) {
	dir := writeConfig(t, "analysis:\n  provider: claude\n")
	_, err := Load(dir, "config", nil)
	assert.ErrorContains(t, err, "不支援的供應商")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := writeConfig(t, "analysis: [unclosed\n")
	_, err := Load(dir, "config", nil)
	assert.Error(t, err)
}

func TestModelFor(t *testing.T) {
	cfg := &Config{
		Gemini:     GeminiClientConfig{Model: "gemini-1.5-flash"},
		OpenRouter: OpenRouterClientConfig{Model: "google/gemini-2.5-pro"},
	}
	assert.Equal(t, "gemini-1.5-flash", cfg.ModelFor(ProviderGemini))
	assert.Equal(t, "google/gemini-2.5-pro", cfg.ModelFor(ProviderOpenRouter))

	cfg.Analysis.Model = "override"
	assert.Equal(t, "override", cfg.ModelFor(ProviderGemini))
}
