package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearProviderEnv は実行環境のAPIキーがテストに漏れないようにする
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "GROQ_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "QWEN_API_KEY", "CARBOT_HOST", "CARBOT_PORT", "CARBOT_LOG_LEVEL", "CARBOT_LOG_FORMAT"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Success(t *testing.T) {
	clearProviderEnv(t)

	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

provider_order:
  - openai
  - claude

providers:
  openai:
    api_key: "sk-test"
    model: "gpt-4o-mini"
  claude:
    model: "claude-sonnet-4-20250514"

generation:
  max_tokens: 512
  temperature: 0.5

log:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"openai", "claude"}, cfg.ProviderOrder)
	assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	assert.Equal(t, 512, cfg.Generation.MaxTokens)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.7, cfg.Generation.Temperature)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BackoffBase())
	assert.Equal(t, 8*time.Second, cfg.Retry.BackoffCap())
	assert.Equal(t, 15*time.Second, cfg.Retry.Timeout())
	assert.Equal(t, 3, cfg.Breaker.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 10, cfg.Conversation.MaxTurns)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitZeroGeneration(t *testing.T) {
	clearProviderEnv(t)

	// 決定的生成のための明示的な0はデフォルトで潰さない
	path := writeConfig(t, `
generation:
  max_tokens: 0
  temperature: 0.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.0, cfg.Generation.Temperature)
}

func TestLoad_PartialGenerationBlock(t *testing.T) {
	clearProviderEnv(t)

	// 省略したキーにはデフォルトが入る
	path := writeConfig(t, `
generation:
  temperature: 0.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Generation.MaxTokens)
	assert.Equal(t, 0.0, cfg.Generation.Temperature)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-claude-key")
	t.Setenv("CARBOT_PORT", "7070")

	path := writeConfig(t, `
provider_order:
  - claude
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// APIキーは環境変数から読み込まれ、ファイルの値を上書きする
	assert.Equal(t, "env-claude-key", cfg.Providers["claude"].APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_FailsWithoutAnyUsableKey(t *testing.T) {
	clearProviderEnv(t)

	path := writeConfig(t, `
provider_order:
  - openai
  - claude
`)

	_, err := Load(path)
	require.Error(t, err, "startup must fail hard when no usable provider key exists")
}

func TestLoad_FallbackOnlyAllowsMissingKeys(t *testing.T) {
	clearProviderEnv(t)

	path := writeConfig(t, `
fallback_only: true

provider_order:
  - openai
`)

	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoad_KeylessProviderIsUsable(t *testing.T) {
	clearProviderEnv(t)

	// ollamaはローカル接続のためキー不要
	path := writeConfig(t, `
provider_order:
  - ollama
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.UsableProvider("ollama"))
}

func TestLoad_InvalidPort(t *testing.T) {
	clearProviderEnv(t)

	path := writeConfig(t, `
server:
  port: 70000
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearProviderEnv(t)

	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
}
