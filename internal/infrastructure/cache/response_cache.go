package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

// キャッシュ既定値
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 50
)

// entry はキャッシュエントリ
type entry struct {
	result     domain.GenerationResult
	insertedAt time.Time
}

// ResponseCache は短TTLの応答キャッシュ
// 同一発話の繰り返しによる重複呼び出しを避けるためのもの
// TTL失効と、上限超過時の最古エントリ追い出しで有界に保つ
type ResponseCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*entry
	order      []string // 挿入順（先頭が最古）
	now        func() time.Time
}

// New は新しいResponseCacheを作成
func New(ttl time.Duration, maxEntries int) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &ResponseCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		order:      make([]string, 0),
	}
}

// SetClock は時刻取得関数を差し替える（テスト用）
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Key は正規化プロンプトのフィンガープリントを計算
// 最後のuserメッセージ・temperature・プロバイダーIDから導出する
func Key(lastUserMessage string, temperature float64, providerID string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%.3f|%s", lastUserMessage, temperature, providerID)))
	return hex.EncodeToString(h[:])
}

// Get はキャッシュから結果を取得
// TTL失効エントリはこの時点で破棄し、ミスとして扱う
func (c *ResponseCache) Get(key string) (domain.GenerationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.GenerationResult{}, false
	}

	if c.clock().Sub(e.insertedAt) >= c.ttl {
		c.remove(key)
		return domain.GenerationResult{}, false
	}

	result := e.result
	result.Cached = true
	return result, true
}

// Put は結果をキャッシュに格納
// 上限超過時は最古のエントリを追い出す
func (c *ResponseCache) Put(key string, result domain.GenerationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}

	c.entries[key] = &entry{
		result:     result,
		insertedAt: c.clock(),
	}
	c.order = append(c.order, key)

	for len(c.entries) > c.maxEntries {
		c.remove(c.order[0])
	}
}

// Len は現在のエントリ数を返す
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clock は現在時刻を返す
func (c *ResponseCache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// remove はエントリを削除
// 呼び出し側でロックを保持すること
func (c *ResponseCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
