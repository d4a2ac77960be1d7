package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

// anthropicVersion はAnthropic APIのバージョンヘッダー値
const anthropicVersion = "2023-06-01"

// defaultTimeout は1試行あたりのHTTPタイムアウト既定値
const defaultTimeout = 15 * time.Second

// HTTPProvider はRegistry設定に基づく単一のパラメータ化プロバイダー実装
// プロバイダーごとのクラス複製はせず、設定テーブルで差分を吸収する
type HTTPProvider struct {
	cfg     ProviderConfig
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewHTTPProvider は新しいHTTPProviderを作成
// modelが空の場合は設定のDefaultModelを使用
func NewHTTPProvider(cfg ProviderConfig, apiKey, model string, timeout time.Duration) *HTTPProvider {
	if model == "" {
		model = cfg.DefaultModel
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPProvider{
		cfg:     cfg,
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (p *HTTPProvider) SetBaseURL(url string) {
	p.baseURL = strings.TrimRight(url, "/")
}

// ID はプロバイダーIDを返す
func (p *HTTPProvider) ID() string {
	return p.cfg.ID
}

// Model は使用中のモデル名を返す
func (p *HTTPProvider) Model() string {
	return p.model
}

// Generate はLLM生成を実行
// 非2xxはHTTPError、2xxだが解釈不能な場合はMalformedResponseErrorを返す
func (p *HTTPProvider) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerationResult, error) {
	reqBody, err := BuildRequest(req, p.cfg, p.model)
	if err != nil {
		return domain.GenerationResult{}, err
	}

	url := p.baseURL + strings.ReplaceAll(p.cfg.Path, "{model}", p.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	p.setAuthHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.GenerationResult{}, &domain.HTTPError{
			ProviderID: p.cfg.ID,
			Status:     resp.StatusCode,
			Body:       truncateBody(body),
		}
	}

	return ParseResponse(body, p.cfg, p.model)
}

// setAuthHeaders は認証方式に応じたヘッダーを付与
func (p *HTTPProvider) setAuthHeaders(req *http.Request) {
	switch p.cfg.AuthScheme {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	case AuthAnthropic:
		req.Header.Set("x-api-key", p.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	case AuthGoogle:
		req.Header.Set("x-goog-api-key", p.apiKey)
	case AuthNone:
		// 認証なし
	}
}

// truncateBody はエラーメッセージ用にボディを切り詰める
func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
