package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
llm:
  backend: openai
  openai_api_key: sk-test
worker:
  max_workers: 5
store:
  notion_token: secret_abc
  prospects_db_id: db123
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Worker.MaxWorkers)
	assert.Equal(t, 5, cfg.Worker.BatchSize) // default, not overridden
	assert.Equal(t, ".cache", cfg.Cache.PersistentDir)
	assert.Equal(t, "local", cfg.Cache.PersistentBackend)
	assert.Equal(t, 1000, cfg.Cache.MemoryMaxEntries)
	assert.True(t, cfg.Email.ReviewRequired, "review required defaults true when auto-send is off")
	assert.NotEmpty(t, cfg.RateLimits.Services)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.LLM.Backend = "not-a-backend"
	cfg.Worker.MaxWorkers = 0
	cfg.Cache.PersistentBackend = "s3"
	cfg.Store.NotionToken = ""

	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 4)
}

func TestValidateHappyPath(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	errs := cfg.Validate()
	assert.Empty(t, errs)
}

func TestLoadFromEnvOverridesSecrets(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("NOTION_TOKEN", "secret-from-env")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.OpenAIAPIKey)
	assert.Equal(t, "secret-from-env", cfg.Store.NotionToken)
}
