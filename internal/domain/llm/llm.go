package llm

import (
	"context"
	"time"
)

// Role はメッセージの役割を表す
type Role string

// メッセージ役割の定数定義
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Message はLLMメッセージを表す
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// NewMessage は新しいMessageを作成
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// FunctionSpec は関数呼び出し定義を表す
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// GenerateRequest はLLM生成リクエスト
type GenerateRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Functions   []FunctionSpec
}

// LastUserMessage は最後のuserメッセージを返す
func (r GenerateRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// GenerationResult はLLM生成レスポンス
type GenerationResult struct {
	Content      string
	ProviderID   string
	ModelID      string
	InputTokens  int
	OutputTokens int
	FinishReason string
	Cached       bool
}

// TokensUsed は入出力トークンの合計を返す
func (r GenerationResult) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

// Provider はLLMプロバイダーの抽象化
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerationResult, error)
	ID() string
}
