package conversation

import (
	"time"

	"github.com/carvoice/carbot/internal/domain/llm"
)

// DefaultMaxTurns は保持する会話ターン数のデフォルト値
const DefaultMaxTurns = 10

// Conversation は1セッション分の会話履歴を表すエンティティ
// 直近maxTurnsターンのみ保持し、超過分は先頭から切り詰める
// プロセス再起動をまたぐ永続化は行わない
type Conversation struct {
	id        string
	messages  []llm.Message
	maxTurns  int
	createdAt time.Time
	updatedAt time.Time
}

// New は新しいConversationを作成
// maxTurnsが0以下の場合はDefaultMaxTurnsを使用
func New(id string, maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	now := time.Now()
	return &Conversation{
		id:        id,
		messages:  make([]llm.Message, 0),
		maxTurns:  maxTurns,
		createdAt: now,
		updatedAt: now,
	}
}

// ID はセッションIDを返す
func (c *Conversation) ID() string {
	return c.id
}

// CreatedAt は作成時刻を返す
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt は最終更新時刻を返す
func (c *Conversation) UpdatedAt() time.Time {
	return c.updatedAt
}

// AddUserMessage はユーザー発話を履歴に追加
func (c *Conversation) AddUserMessage(content string) {
	c.append(llm.NewMessage(llm.RoleUser, content))
}

// AddAssistantMessage はアシスタント応答を履歴に追加
func (c *Conversation) AddAssistantMessage(content string) {
	c.append(llm.NewMessage(llm.RoleAssistant, content))
}

// append はメッセージを追加し、上限を超えた分を先頭から切り詰める
func (c *Conversation) append(msg llm.Message) {
	c.messages = append(c.messages, msg)

	// 1ターン = user + assistant の2メッセージ
	maxMessages := c.maxTurns * 2
	if len(c.messages) > maxMessages {
		trimmed := make([]llm.Message, maxMessages)
		copy(trimmed, c.messages[len(c.messages)-maxMessages:])
		c.messages = trimmed
	}

	c.updatedAt = time.Now()
}

// Messages は履歴のコピーを返す（system メッセージは含まない）
func (c *Conversation) Messages() []llm.Message {
	result := make([]llm.Message, len(c.messages))
	copy(result, c.messages)
	return result
}

// Snapshot はプロバイダー送信用のメッセージ列を構築
// systemPromptが空でなければ、先頭に唯一のsystemメッセージとして付与する
func (c *Conversation) Snapshot(systemPrompt string) []llm.Message {
	result := make([]llm.Message, 0, len(c.messages)+1)

	if systemPrompt != "" {
		result = append(result, llm.NewMessage(llm.RoleSystem, systemPrompt))
	}

	return append(result, c.messages...)
}

// Len は履歴の件数を返す
func (c *Conversation) Len() int {
	return len(c.messages)
}
