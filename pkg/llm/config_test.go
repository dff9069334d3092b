package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(`
base_url: https://llm.example.com/v1
api_key: k
default_model: fast
timeout: 30s
max_retries: 2
models:
  fast:
    model_name: provider/small-model
    temperature: 0.2
`))
	require.NoError(t, err)
	assert.Equal(t, "https://llm.example.com/v1", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)

	id, mc := cfg.resolveModel("fast")
	assert.Equal(t, "provider/small-model", id)
	require.NotNil(t, mc.Temperature)
	assert.InDelta(t, 0.2, *mc.Temperature, 1e-9)
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "https://env.example.com/v1")
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_DEFAULT_MODEL", "env-model")

	cfg, err := LoadConfigFromReader(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "env-model", cfg.DefaultModel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaultsTimeout(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("base_url: x\ndefault_model: y\n"))
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestLoadConfigRejectsBadTimeout(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidateRequiresBaseURLAndModel(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_DEFAULT_MODEL", "")
	cfg, err := LoadConfigFromReader(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestResolveModelPassesThroughUnknownAlias(t *testing.T) {
	cfg := &Config{DefaultModel: "default/model"}
	id, _ := cfg.resolveModel("")
	assert.Equal(t, "default/model", id)

	id, _ = cfg.resolveModel("direct/model")
	assert.Equal(t, "direct/model", id)
}
