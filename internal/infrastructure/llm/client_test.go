package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

func userRequest(content string) domain.GenerateRequest {
	return domain.GenerateRequest{
		Messages:  []domain.Message{domain.NewMessage(domain.RoleUser, content)},
		MaxTokens: 100,
	}
}

func TestHTTPProviderGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected path '/v1/chat/completions', got '%s'", r.URL.Path)
		}

		// Bearer認証ヘッダー確認
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got '%s'", auth)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Hello, driver!"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 4},
		})
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("openai")
	provider := NewHTTPProvider(cfg, "test-key", "", 5*time.Second)
	provider.SetBaseURL(server.URL) // テスト用にベースURLを上書き

	result, err := provider.Generate(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.Content != "Hello, driver!" {
		t.Errorf("Expected content, got '%s'", result.Content)
	}

	if result.ProviderID != "openai" {
		t.Errorf("Expected provider 'openai', got '%s'", result.ProviderID)
	}
}

func TestHTTPProviderGenerate_AnthropicHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("x-api-key"); key != "test-key" {
			t.Errorf("Expected x-api-key header, got '%s'", key)
		}

		if version := r.Header.Get("anthropic-version"); version == "" {
			t.Error("anthropic-version header should be set")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": "ok"}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("claude")
	provider := NewHTTPProvider(cfg, "test-key", "", 5*time.Second)
	provider.SetBaseURL(server.URL)

	if _, err := provider.Generate(context.Background(), userRequest("hi")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestHTTPProviderGenerate_GeminiModelInPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := "/v1beta/models/gemini-2.0-flash:generateContent"
		if r.URL.Path != expected {
			t.Errorf("Expected path '%s', got '%s'", expected, r.URL.Path)
		}

		if key := r.Header.Get("x-goog-api-key"); key != "test-key" {
			t.Errorf("Expected x-goog-api-key header, got '%s'", key)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "ok"}}}},
			},
		})
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("gemini")
	provider := NewHTTPProvider(cfg, "test-key", "", 5*time.Second)
	provider.SetBaseURL(server.URL)

	if _, err := provider.Generate(context.Background(), userRequest("hi")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
}

func TestHTTPProviderGenerate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("openai")
	provider := NewHTTPProvider(cfg, "test-key", "", 5*time.Second)
	provider.SetBaseURL(server.URL)

	_, err := provider.Generate(context.Background(), userRequest("hi"))

	var httpErr *domain.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}

	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", httpErr.Status)
	}

	if !httpErr.Retryable() {
		t.Error("Expected 429 to be retryable")
	}
}

func TestHTTPProviderGenerate_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 2xxだが期待するフィールドがないボディ
		w.Write([]byte(`{"unexpected": true}`))
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("openai")
	provider := NewHTTPProvider(cfg, "test-key", "", 5*time.Second)
	provider.SetBaseURL(server.URL)

	_, err := provider.Generate(context.Background(), userRequest("hi"))

	var malformed *domain.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected MalformedResponseError, got %v", err)
	}
}

func TestHTTPProviderGenerate_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ボディを読み切らないとサーバーが切断を検知できず、r.Context()が
		// キャンセルされないままserver.Close()がハングする
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg, _ := NewRegistry().Get("openai")
	provider := NewHTTPProvider(cfg, "test-key", "", 30*time.Second)
	provider.SetBaseURL(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := provider.Generate(ctx, userRequest("hi"))
	if err == nil {
		t.Fatal("Expected cancellation error")
	}

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestHTTPProviderDefaultModel(t *testing.T) {
	cfg, _ := NewRegistry().Get("groq")

	provider := NewHTTPProvider(cfg, "key", "", 0)
	if provider.Model() != cfg.DefaultModel {
		t.Errorf("Expected default model '%s', got '%s'", cfg.DefaultModel, provider.Model())
	}

	provider = NewHTTPProvider(cfg, "key", "custom-model", 0)
	if provider.Model() != "custom-model" {
		t.Errorf("Expected 'custom-model', got '%s'", provider.Model())
	}
}
