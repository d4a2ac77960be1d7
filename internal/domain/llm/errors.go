package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProvider は未登録プロバイダーを指定した場合のエラー
var ErrUnknownProvider = errors.New("unknown provider")

// AdapterError はリクエスト構築に失敗した場合のエラー
// 設定不備として扱い、リトライしない
type AdapterError struct {
	ProviderID string
	Reason     string
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter error for provider %s: %s", e.ProviderID, e.Reason)
}

// MalformedResponseError は2xxだがレスポンスボディを解釈できない場合のエラー
// リトライしないが、ブレーカーの失敗カウントには加算する
type MalformedResponseError struct {
	ProviderID string
	Reason     string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from provider %s: %s", e.ProviderID, e.Reason)
}

// HTTPError はプロバイダーAPIの非2xxレスポンスを表す
type HTTPError struct {
	ProviderID string
	Status     int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.ProviderID, e.Status, e.Body)
}

// Retryable はリトライ対象のステータスかを判定
// 429/502/503/504 はリトライ対象、その他の4xx/5xxは対象外
func (e *HTTPError) Retryable() bool {
	switch e.Status {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

// CircuitOpenError はブレーカー開放中にプロバイダーをスキップしたことを表す
type CircuitOpenError struct {
	ProviderID string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for provider %s", e.ProviderID)
}

// ProviderExhaustedError は全リトライを使い切ったことを表す
// 診断用に各試行のエラーを保持する
type ProviderExhaustedError struct {
	ProviderID string
	Attempts   []error
}

func (e *ProviderExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for i, err := range e.Attempts {
		parts = append(parts, fmt.Sprintf("attempt %d: %v", i+1, err))
	}
	return fmt.Sprintf("provider %s exhausted after %d attempts: %s",
		e.ProviderID, len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap は最後の試行エラーを返す
func (e *ProviderExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// IsRetryable はエラーがリトライ対象かを判定
// ネットワーク/タイムアウト系はリトライ、レスポンス不正・設定不備はリトライしない
func IsRetryable(err error) bool {
	// 呼び出し側がキャンセルした場合はリトライしない
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return false
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return false
	}

	// 上記以外（接続失敗・タイムアウト等）はリトライ対象
	return true
}
