package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func TestLoadAppliesDefaultsWithNoFiles(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 60, cfg.PauseGatewaySeconds)
	assert.NotEmpty(t, cfg.IPFSGateways)
}

func TestLoadLayersBaseEnvironmentAndLocal(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base", "server_port: 9000\nuser_agent: base-agent\n")
	writeYAML(t, dir, "staging", "user_agent: staging-agent\n")
	writeYAML(t, dir, "local", "user_agent: local-agent\n")

	cfg, err := Load(dir, "staging")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.ServerPort, "base value survives when not overridden")
	assert.Equal(t, "local-agent", cfg.UserAgent, "local.yaml has the highest file priority")
}

func TestLoadEnvironmentWithoutLocalUsesEnvironmentLayer(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base", "user_agent: base-agent\n")
	writeYAML(t, dir, "staging", "user_agent: staging-agent\n")

	cfg, err := Load(dir, "staging")
	require.NoError(t, err)
	assert.Equal(t, "staging-agent", cfg.UserAgent)
}

func TestLoadDatabaseURLEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "sqlite:///tmp/override.db")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/override.db", cfg.DatabaseURL)
}

func TestLoadPortEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "9999")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.ServerPort)
}

func TestLoadPermittedResizeDimensions(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base", "permitted_resize_dimensions:\n  - width: 64\n    height: 64\n  - width: 128\n    height: 128\n")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Len(t, cfg.PermittedResizeDimensions, 2)
	assert.Equal(t, Dimension{Width: 64, Height: 64}, cfg.PermittedResizeDimensions[0])
}
