package session

import (
	"sync"

	"github.com/carvoice/carbot/internal/domain/conversation"
)

// entry はセッション1つ分の会話と直列化用ロック
type entry struct {
	mu   sync.Mutex
	conv *conversation.Conversation
}

// Store はセッションID -> 会話のインメモリストア
// プロセス再起動をまたぐ永続化は行わない（仕様上不要）
// セッションごとのロックで、同一セッションの同時ターンを直列化する
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	maxTurns int
}

// NewStore は新しいStoreを作成
func NewStore(maxTurns int) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		maxTurns: maxTurns,
	}
}

// get はセッションのエントリを取得（なければ作成）
func (s *Store) get(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{conv: conversation.New(id, s.maxTurns)}
		s.sessions[id] = e
	}

	return e
}

// GetOrCreate はセッションを取得し、なければ作成する
func (s *Store) GetOrCreate(id string) *conversation.Conversation {
	return s.get(id).conv
}

// Acquire はセッションのロックを取得して会話を返す
// 同一セッションへの並行リクエストはここで直列化される
// 返された解放関数をターン終了時に必ず呼ぶこと
func (s *Store) Acquire(id string) (*conversation.Conversation, func()) {
	e := s.get(id)
	e.mu.Lock()
	return e.conv, e.mu.Unlock
}

// Delete はセッションを削除
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len は保持中のセッション数を返す
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
