package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "botfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
Name: botfleet-api
Host: 0.0.0.0
Port: 8888
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsTestEnv())
	assert.Equal(t, 10, cfg.TTL.Short)
	assert.Equal(t, 60, cfg.TTL.Medium)
	assert.Equal(t, "./charts", cfg.Chart.OutputDir)
	assert.Equal(t, 1, cfg.Orchestrator.MaxConcurrentPerCred)
	assert.Equal(t, 120, cfg.Orchestrator.ChartCandles)
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	path := writeConfig(t, `
Name: botfleet-api
Host: 0.0.0.0
Port: 8888
Env: staging
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestProdRequiresCredentialsKey(t *testing.T) {
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "")
	path := writeConfig(t, `
Name: botfleet-api
Host: 0.0.0.0
Port: 8888
Env: prod
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestCredentialsKeyFromEnv(t *testing.T) {
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "super-secret")
	path := writeConfig(t, `
Name: botfleet-api
Host: 0.0.0.0
Port: 8888
Env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cfg.CredentialsKey)
}
