package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 3, cfg.Anthropic.MaxDecodeRetries)
	assert.Equal(t, "zh-CN", cfg.Search.Market)
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.Equal(t, "https://fanyi-api.baidu.com", cfg.Translate.BaseURL)
	assert.Equal(t, 3, cfg.Attribution.EffectThreshold)
	assert.Equal(t, 5, cfg.Attribution.StrongThreshold)
	assert.Equal(t, 1800, cfg.Attribution.TimeWindowSeconds)
	assert.Contains(t, cfg.Attribution.HolidayExceptions, "20240208")
	assert.Equal(t, "concept_hierarchy.json", cfg.Data.HierarchyPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LIMITUP_STORE_DRIVER", "sqlite")
	t.Setenv("LIMITUP_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
