package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig puts a config file in the fake home's allowed directory.
func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "voxd")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "voxd", cfg.Observability.ServiceName)
	assert.Equal(t, "heuristic", cfg.Extraction.Provider)
	assert.Equal(t, "09:00", cfg.Scheduler.DayStart)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Step.Duration())
	assert.Equal(t, int64(512<<20), cfg.Capture.MaxBytes)
}

func TestLoadWithFile_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8099
  shutdown_timeout: 5s
extraction:
  provider: llm
  model: gpt-4o-mini
  api_key: sk-test
  timeout: 30s
capture:
  max_bytes: 1048576
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "llm", cfg.Extraction.Provider)
	assert.Equal(t, "sk-test", cfg.Extraction.APIKey.Value())
	assert.Equal(t, 30*time.Second, cfg.Extraction.Timeout.Duration())
	assert.Equal(t, int64(1048576), cfg.Capture.MaxBytes)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8099\n", 0o600)
	t.Setenv("SERVER_HTTP_PORT", "8200")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8200, cfg.Server.Port)
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8099\n", 0o644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server: {}\n"), 0o600))

	_, err := LoadWithFile(outside)
	assert.Error(t, err)
}

func TestLoadWithFile_UnknownProvider(t *testing.T) {
	path := writeConfig(t, "extraction:\n  provider: oracle\n", 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction provider")
}

func TestValidate_LLMRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, "extraction:\n  provider: llm\n", 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestDuration_RejectsNegative(t *testing.T) {
	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-super-secret", s.Value())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-super-secret")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
