package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Contains(t, cfg.DSN, "appsight")
	assert.Equal(t, 7*24*time.Hour, cfg.ReportTTL())
	assert.Equal(t, 30*time.Minute, cfg.QueryTTL())
	assert.Equal(t, 100, cfg.Cache.AnalysisCapacity)
	assert.Equal(t, 50, cfg.Cache.ComparisonCapacity)
	assert.Equal(t, 0.75, cfg.AI.Semantic.SimilarityThreshold)
	assert.Equal(t, 384, cfg.AI.Embedding.Dimensions)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
env: production
base_url: https://appsight.example.com/
cache:
  report_ttl_hours: 48
  query_ttl_minutes: 10
ai:
  providers:
    - id: main
      type: anthropic
      api_key: sk-test
      enabled: true
  generation_model:
    provider_id: main
    model: claude-sonnet-4-5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "https://appsight.example.com", cfg.BaseURL)
	assert.Equal(t, 48*time.Hour, cfg.ReportTTL())
	assert.Equal(t, 10*time.Minute, cfg.QueryTTL())

	provider := cfg.SelectAIProvider()
	require.NotNil(t, provider)
	assert.Equal(t, "main", provider.ID)
	assert.Equal(t, "claude-sonnet-4-5", provider.DefaultModel)
}

func TestSelectAIProviderFallsBackToFirstEnabled(t *testing.T) {
	cfg := &AppConfig{}
	cfg.AI.Providers = []AIProvider{
		{ID: "off", Enabled: false},
		{ID: "on", Enabled: true},
	}
	provider := cfg.SelectAIProvider()
	require.NotNil(t, provider)
	assert.Equal(t, "on", provider.ID)

	cfg.AI.Providers = nil
	assert.Nil(t, cfg.SelectAIProvider())
}
