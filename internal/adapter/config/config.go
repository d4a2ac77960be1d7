package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
type Config struct {
	Server        ServerConfig                `yaml:"server"`
	ProviderOrder []string                    `yaml:"provider_order"`
	Providers     map[string]ProviderSettings `yaml:"providers"`
	Generation    GenerationConfig            `yaml:"generation"`
	Retry         RetryConfig                 `yaml:"retry"`
	Breaker       BreakerConfig               `yaml:"breaker"`
	Cache         CacheConfig                 `yaml:"cache"`
	Conversation  ConversationConfig          `yaml:"conversation"`
	Log           LogConfig                   `yaml:"log"`
	FallbackOnly  bool                        `yaml:"fallback_only"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderSettings はプロバイダーごとの設定
type ProviderSettings struct {
	APIKey  string `yaml:"api_key"` // 環境変数から読み込み推奨
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // 空ならレジストリの既定値
}

// GenerationConfig は生成パラメータ設定
// 明示的な0指定（決定的生成のtemperature: 0等）とキー省略を区別する
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
	TopP        float64

	maxTokensSet   bool
	temperatureSet bool
}

// UnmarshalYAML はキーの有無を記録しながらデコードする
func (g *GenerationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxTokens   *int     `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"`
		TopP        float64  `yaml:"top_p"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxTokens != nil {
		g.MaxTokens = *raw.MaxTokens
		g.maxTokensSet = true
	}

	if raw.Temperature != nil {
		g.Temperature = *raw.Temperature
		g.temperatureSet = true
	}

	g.TopP = raw.TopP
	return nil
}

// RetryConfig はリトライ設定
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	BackoffBaseMS int `yaml:"backoff_base_ms"`
	BackoffCapMS  int `yaml:"backoff_cap_ms"`
	TimeoutMS     int `yaml:"timeout_ms"` // 1試行あたりのタイムアウト
}

// BackoffBase はバックオフ基準値を返す
func (r RetryConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMS) * time.Millisecond
}

// BackoffCap はバックオフ上限を返す
func (r RetryConfig) BackoffCap() time.Duration {
	return time.Duration(r.BackoffCapMS) * time.Millisecond
}

// Timeout は1試行あたりのタイムアウトを返す
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// BreakerConfig はサーキットブレーカー設定
type BreakerConfig struct {
	Threshold  int `yaml:"threshold"`
	CooldownMS int `yaml:"cooldown_ms"`
}

// Cooldown はブレーカーのクールダウン時間を返す
func (b BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownMS) * time.Millisecond
}

// CacheConfig は応答キャッシュ設定
type CacheConfig struct {
	TTLMS      int `yaml:"ttl_ms"`
	MaxEntries int `yaml:"max_entries"`
}

// TTL はキャッシュTTLを返す
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMS) * time.Millisecond
}

// ConversationConfig は会話履歴設定
type ConversationConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides は環境変数からの上書き定義
type envOverrides struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	GroqKey      string `env:"GROQ_API_KEY"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	QwenKey      string `env:"QWEN_API_KEY"`
	Host         string `env:"CARBOT_HOST"`
	Port         int    `env:"CARBOT_PORT"`
	LogLevel     string `env:"CARBOT_LOG_LEVEL"`
	LogFormat    string `env:"CARBOT_LOG_FORMAT"`
}

// Load は設定ファイルを読み込む
// ファイルが存在しない場合は既定値＋環境変数のみで構成する
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("path", path).Warn("config file not found, using defaults")
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults はデフォルト値を設定
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderSettings)
	}

	if !c.Generation.maxTokensSet && c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 256
	}

	if !c.Generation.temperatureSet && c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.7
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}

	if c.Retry.BackoffBaseMS == 0 {
		c.Retry.BackoffBaseMS = 500
	}

	if c.Retry.BackoffCapMS == 0 {
		c.Retry.BackoffCapMS = 8000
	}

	if c.Retry.TimeoutMS == 0 {
		c.Retry.TimeoutMS = 15000
	}

	if c.Breaker.Threshold == 0 {
		c.Breaker.Threshold = 3
	}

	if c.Breaker.CooldownMS == 0 {
		c.Breaker.CooldownMS = 30000
	}

	if c.Cache.TTLMS == 0 {
		c.Cache.TTLMS = 300000
	}

	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 50
	}

	if c.Conversation.MaxTurns == 0 {
		c.Conversation.MaxTurns = 10
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// loadFromEnv は環境変数から設定を上書き
// APIキーはファイルに平文保存せず環境変数で渡すことを推奨する
func (c *Config) loadFromEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return err
	}

	c.setProviderKey("openai", overrides.OpenAIKey)
	c.setProviderKey("groq", overrides.GroqKey)
	c.setProviderKey("claude", overrides.AnthropicKey)
	c.setProviderKey("gemini", overrides.GeminiKey)
	c.setProviderKey("qwen", overrides.QwenKey)

	if overrides.Host != "" {
		c.Server.Host = overrides.Host
	}

	if overrides.Port != 0 {
		c.Server.Port = overrides.Port
	}

	if overrides.LogLevel != "" {
		c.Log.Level = overrides.LogLevel
	}

	if overrides.LogFormat != "" {
		c.Log.Format = overrides.LogFormat
	}

	return nil
}

// setProviderKey はプロバイダーのAPIキーを上書き
func (c *Config) setProviderKey(id, key string) {
	if key == "" {
		return
	}

	settings := c.Providers[id]
	settings.APIKey = key
	c.Providers[id] = settings
}

// keylessProviders は認証不要のプロバイダー
var keylessProviders = map[string]bool{
	"ollama": true,
}

// Validate は設定の妥当性を検証
// キー未設定のプロバイダーは警告のみ：利用可能なプロバイダーが
// 1つもなく、フォールバック専用モードでもない場合だけ起動を失敗させる
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}

	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be at least 1")
	}

	if len(c.ProviderOrder) == 0 {
		if !c.FallbackOnly {
			logrus.Warn("no providers configured, running with rule-based responses only")
		}
		return nil
	}

	usable := 0
	for _, id := range c.ProviderOrder {
		if c.UsableProvider(id) {
			usable++
			continue
		}
		logrus.WithField("provider", id).Warn("provider listed in provider_order but API key is missing")
	}

	if usable == 0 && !c.FallbackOnly {
		return fmt.Errorf("no usable provider key found for any of %v (set fallback_only to run without providers)", c.ProviderOrder)
	}

	return nil
}

// UsableProvider はプロバイダーが利用可能（キー設定済みまたはキー不要）かを判定
func (c *Config) UsableProvider(id string) bool {
	if keylessProviders[id] {
		return true
	}
	return c.Providers[id].APIKey != ""
}
