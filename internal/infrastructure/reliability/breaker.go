package reliability

import (
	"sync"
	"time"
)

// ブレーカー既定値
const (
	DefaultThreshold = 3
	DefaultCooldown  = 30 * time.Second
)

// BreakerState はブレーカー状態のスナップショット（/health等の参照用）
type BreakerState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Open                bool      `json:"open"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// breakerEntry はプロバイダー1つ分のブレーカー状態
type breakerEntry struct {
	consecutiveFailures int
	lastFailure         time.Time
	openedAt            time.Time
	open                bool
	probing             bool
}

// Breaker はプロバイダーごとのサーキットブレーカー
// 連続失敗がthresholdに達すると開放し、cooldown経過後のプローブ成功で閉じる
// ロックはメモリ上の状態更新の間のみ保持し、ネットワークI/Oをまたがない
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	entries   map[string]*breakerEntry
}

// NewBreaker は新しいBreakerを作成
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		entries:   make(map[string]*breakerEntry),
	}
}

// SetClock は時刻取得関数を差し替える（テスト用）
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// entry は指定プロバイダーの状態を取得（なければ作成）
// 呼び出し側でロックを保持すること
func (b *Breaker) entry(providerID string) *breakerEntry {
	e, ok := b.entries[providerID]
	if !ok {
		e = &breakerEntry{}
		b.entries[providerID] = e
	}
	return e
}

// Allow は呼び出しを許可するかを判定
// 開放中でもcooldown経過後は1回だけプローブを通す（半開状態）
func (b *Breaker) Allow(providerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(providerID)

	if !e.open {
		return true
	}

	if b.now().Sub(e.openedAt) < b.cooldown {
		return false
	}

	// 半開状態：プローブ中は追加の呼び出しを通さない
	if e.probing {
		return false
	}

	e.probing = true
	return true
}

// RecordSuccess は成功を記録し、失敗カウントをリセットして閉じる
func (b *Breaker) RecordSuccess(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(providerID)
	e.consecutiveFailures = 0
	e.open = false
	e.probing = false
}

// RecordFailure は失敗を記録
// 閾値到達で開放、プローブ失敗時は開放時刻を更新して再度cooldownに入る
func (b *Breaker) RecordFailure(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(providerID)
	e.consecutiveFailures++
	e.lastFailure = b.now()

	if e.probing {
		e.probing = false
		e.openedAt = b.now()
		return
	}

	if e.consecutiveFailures >= b.threshold {
		e.open = true
		e.openedAt = b.now()
	}
}

// ReleaseProbe は半開プローブを結果不明のまま解放する
// 呼び出し側キャンセルで試行が中断され、成否を判定できない場合に使う
func (b *Breaker) ReleaseProbe(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(providerID).probing = false
}

// State は指定プロバイダーの状態スナップショットを返す
func (b *Breaker) State(providerID string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(providerID)
	return BreakerState{
		ConsecutiveFailures: e.consecutiveFailures,
		Open:                e.open,
		LastFailure:         e.lastFailure,
	}
}
