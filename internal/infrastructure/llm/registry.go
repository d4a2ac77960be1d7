package llm

import (
	"fmt"
	"sort"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

// RequestShape はプロバイダーのリクエストJSON形式を表す
type RequestShape string

// リクエスト形式の定数定義
const (
	RequestShapeOpenAI    RequestShape = "openai"    // OpenAI互換（groq/qwen/ollama含む）
	RequestShapeAnthropic RequestShape = "anthropic" // Anthropic Messages API
	RequestShapeGemini    RequestShape = "gemini"    // Google Gemini generateContent
)

// ResponseShape はプロバイダーのレスポンスJSON形式を表す
type ResponseShape string

// レスポンス形式の定数定義
const (
	ResponseShapeOpenAI    ResponseShape = "openai"
	ResponseShapeAnthropic ResponseShape = "anthropic"
	ResponseShapeGemini    ResponseShape = "gemini"
)

// AuthScheme は認証ヘッダーの付与方式を表す
type AuthScheme string

// 認証方式の定数定義
const (
	AuthBearer    AuthScheme = "bearer"    // Authorization: Bearer <key>
	AuthAnthropic AuthScheme = "anthropic" // x-api-key + anthropic-version
	AuthGoogle    AuthScheme = "google"    // x-goog-api-key
	AuthNone      AuthScheme = "none"      // 認証なし（ローカルollama等）
)

// ProviderConfig はプロバイダーの静的設定
// 起動時に一度構築され、以降は変更しない
type ProviderConfig struct {
	ID            string
	BaseURL       string
	Path          string // "{model}" はモデル名に置換される
	DefaultModel  string
	AuthScheme    AuthScheme
	RequestShape  RequestShape
	ResponseShape ResponseShape
}

// Registry はプロバイダー設定の静的テーブル
// 初期化後は読み取り専用として扱う
type Registry struct {
	configs map[string]ProviderConfig
}

// NewRegistry は組み込みプロバイダーを登録済みのRegistryを作成
func NewRegistry() *Registry {
	r := &Registry{
		configs: make(map[string]ProviderConfig),
	}

	for _, cfg := range builtinConfigs() {
		r.configs[cfg.ID] = cfg
	}

	return r
}

// builtinConfigs は組み込みプロバイダーの設定テーブルを返す
func builtinConfigs() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:            "openai",
			BaseURL:       "https://api.openai.com",
			Path:          "/v1/chat/completions",
			DefaultModel:  "gpt-4o-mini",
			AuthScheme:    AuthBearer,
			RequestShape:  RequestShapeOpenAI,
			ResponseShape: ResponseShapeOpenAI,
		},
		{
			ID:            "groq",
			BaseURL:       "https://api.groq.com/openai",
			Path:          "/v1/chat/completions",
			DefaultModel:  "llama-3.3-70b-versatile",
			AuthScheme:    AuthBearer,
			RequestShape:  RequestShapeOpenAI,
			ResponseShape: ResponseShapeOpenAI,
		},
		{
			ID:            "qwen",
			BaseURL:       "https://dashscope.aliyuncs.com/compatible-mode",
			Path:          "/v1/chat/completions",
			DefaultModel:  "qwen-plus",
			AuthScheme:    AuthBearer,
			RequestShape:  RequestShapeOpenAI,
			ResponseShape: ResponseShapeOpenAI,
		},
		{
			ID:            "claude",
			BaseURL:       "https://api.anthropic.com",
			Path:          "/v1/messages",
			DefaultModel:  "claude-sonnet-4-20250514",
			AuthScheme:    AuthAnthropic,
			RequestShape:  RequestShapeAnthropic,
			ResponseShape: ResponseShapeAnthropic,
		},
		{
			ID:            "gemini",
			BaseURL:       "https://generativelanguage.googleapis.com",
			Path:          "/v1beta/models/{model}:generateContent",
			DefaultModel:  "gemini-2.0-flash",
			AuthScheme:    AuthGoogle,
			RequestShape:  RequestShapeGemini,
			ResponseShape: ResponseShapeGemini,
		},
		{
			ID:            "ollama",
			BaseURL:       "http://localhost:11434",
			Path:          "/v1/chat/completions",
			DefaultModel:  "llama3.2",
			AuthScheme:    AuthNone,
			RequestShape:  RequestShapeOpenAI,
			ResponseShape: ResponseShapeOpenAI,
		},
	}
}

// Get はプロバイダーIDに対応する設定を返す
func (r *Registry) Get(id string) (ProviderConfig, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, id)
	}
	return cfg, nil
}

// Register はプロバイダー設定を追加登録（起動時・テスト用）
func (r *Registry) Register(cfg ProviderConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("provider config requires an ID")
	}

	if cfg.BaseURL == "" {
		return fmt.Errorf("provider %s requires a base URL", cfg.ID)
	}

	r.configs[cfg.ID] = cfg
	return nil
}

// IDs は登録済みプロバイダーIDの一覧をソート順で返す
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
