// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Covers defaults, duration parsing, and required-field errors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
server:
  http_addr: ":8100"
database:
  path: "./data/fixai.db"
model:
  base_url: "https://llm-proxy.example.com"
  model_id: "claude-sonnet"
`

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8100", cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultMaxModelCalls, cfg.Agent.MaxModelCalls)
	assert.Equal(t, DefaultMaxInputTokens, cfg.Agent.MaxInputTokens)
	assert.Equal(t, DefaultTokenEstimationDivisor, cfg.Agent.TokenEstimationDivisor)
	assert.Equal(t, DefaultToolResultMaxChars, cfg.Agent.ToolResultMaxChars)
	assert.Equal(t, DefaultMaxTurnDuration, cfg.Agent.MaxTurnDuration)
	assert.Equal(t, DefaultToolTimeout, cfg.Agent.ToolTimeout)
	assert.Equal(t, DefaultModelTimeout, cfg.Model.Timeout)
	assert.Equal(t, DefaultModelMaxTokens, cfg.Model.MaxTokens)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
agent:
  max_turn_duration: "90s"
  tool_timeout: "15s"
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Agent.MaxTurnDuration)
	assert.Equal(t, 15*time.Second, cfg.Agent.ToolTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
agent:
  tool_timeout: "soon"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool_timeout")
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("FIXAI_TEST_API_KEY", "secret-key")

	cfg, err := Load(writeConfig(t, minimalConfig+`
  api_key: "${FIXAI_TEST_API_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Model.APIKey)
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http_addr",
			content: "database:\n  path: x\nmodel:\n  base_url: y\n  model_id: z\n",
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			content: "server:\n  http_addr: \":1\"\nmodel:\n  base_url: y\n  model_id: z\n",
			wantErr: "database.path",
		},
		{
			name:    "missing model base_url",
			content: "server:\n  http_addr: \":1\"\ndatabase:\n  path: x\nmodel:\n  model_id: z\n",
			wantErr: "model.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
