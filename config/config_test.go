package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Discussion.MaxChainDepth)
	assert.Equal(t, 0.7, cfg.Discussion.DepthDecayTop)
	assert.Equal(t, 0.5, cfg.Discussion.DepthDecayDeep)
	assert.Equal(t, 0.3, cfg.Discussion.HumanReentryFactor)
	assert.Equal(t, time.Second, cfg.Discussion.ListenWindow)
	assert.Equal(t, 8*time.Second, cfg.Discussion.SilenceTimeout)
	assert.Equal(t, 3, cfg.Synthesis.Workers)
	assert.Equal(t, 500, cfg.Capture.Threshold)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  theme: "新製品の名前を決める"
  time_limit: 5m
discussion:
  max_chain_depth: 2
synthesis:
  workers: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "新製品の名前を決める", cfg.Session.Theme)
	assert.Equal(t, 5*time.Minute, cfg.Session.TimeLimit)
	assert.Equal(t, 2, cfg.Discussion.MaxChainDepth)
	assert.Equal(t, 5, cfg.Synthesis.Workers)
	// untouched sections keep their defaults
	assert.Equal(t, 0.7, cfg.Discussion.DepthDecayTop)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GDFLOW_TIME_LIMIT", "3m")
	t.Setenv("GDFLOW_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, 3*time.Minute, cfg.Session.TimeLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discussion:\n  max_chain_depth: 0\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
