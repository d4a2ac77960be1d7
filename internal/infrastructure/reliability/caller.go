package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

// リトライ既定値
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 8 * time.Second
)

// jitterRatio はバックオフに加えるジッターの最大比率
const jitterRatio = 0.2

// Caller はリトライとブレーカーを組み合わせた呼び出し制御
// 1回の論理呼び出しを有界リトライで包み、結果をブレーカーへ反映する
type Caller struct {
	breaker     *Breaker
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	jitter      func() float64
	log         *logrus.Entry
}

// NewCaller は新しいCallerを作成
func NewCaller(breaker *Breaker, maxRetries int, backoffBase, backoffCap time.Duration) *Caller {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}

	if backoffCap <= 0 {
		backoffCap = DefaultBackoffCap
	}

	return &Caller{
		breaker:     breaker,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		sleep:       sleepWithContext,
		jitter:      rand.Float64,
		log:         logrus.WithField("component", "reliability.caller"),
	}
}

// SetSleeper は待機関数を差し替える（テスト用）
func (c *Caller) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}

// SetJitter はジッター乱数源を差し替える（テスト用）
func (c *Caller) SetJitter(jitter func() float64) {
	c.jitter = jitter
}

// Breaker は内部のブレーカーを返す
func (c *Caller) Breaker() *Breaker {
	return c.breaker
}

// Call はプロバイダー呼び出しを実行
// ブレーカー開放中はネットワーク呼び出しを行わずCircuitOpenErrorを返す
// リトライを使い切った場合はProviderExhaustedErrorに各試行のエラーを束ねる
func (c *Caller) Call(ctx context.Context, provider domain.Provider, req domain.GenerateRequest) (domain.GenerationResult, error) {
	providerID := provider.ID()

	if !c.breaker.Allow(providerID) {
		c.log.WithField("provider", providerID).Warn("circuit open, skipping provider")
		return domain.GenerationResult{}, &domain.CircuitOpenError{ProviderID: providerID}
	}

	var attempts []error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result, err := provider.Generate(ctx, req)
		if err == nil {
			// 成功は失敗カウントを即座にリセットする
			c.breaker.RecordSuccess(providerID)
			return result, nil
		}

		attempts = append(attempts, err)
		c.log.WithFields(logrus.Fields{
			"provider": providerID,
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("provider call failed")

		// リトライ対象外のエラーは即座に打ち切る
		if !domain.IsRetryable(err) {
			break
		}

		if attempt < c.maxRetries {
			if err := c.sleep(ctx, c.delayFor(attempt)); err != nil {
				attempts = append(attempts, err)
				break
			}
		}
	}

	exhausted := &domain.ProviderExhaustedError{
		ProviderID: providerID,
		Attempts:   attempts,
	}

	// 呼び出し側都合のキャンセルはプロバイダー健全性の失敗として数えない
	// 半開プローブ中だった場合はプローブ枠だけ解放する
	if errors.Is(exhausted.Unwrap(), context.Canceled) {
		c.breaker.ReleaseProbe(providerID)
	} else {
		c.breaker.RecordFailure(providerID)
	}

	return domain.GenerationResult{}, exhausted
}

// backoffDelay はattempt回目の失敗後の基本待機時間を返す（ジッターなし）
// base * 1.5^(attempt-1) をcapで頭打ちにする
func (c *Caller) backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(c.backoffBase) * math.Pow(1.5, float64(attempt-1)))
	if d > c.backoffCap {
		return c.backoffCap
	}
	return d
}

// delayFor は基本待機時間に最大20%のジッターを加えた値を返す
func (c *Caller) delayFor(attempt int) time.Duration {
	d := c.backoffDelay(attempt)
	return d + time.Duration(float64(d)*jitterRatio*c.jitter())
}

// sleepWithContext はコンテキストキャンセルに応答する待機
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
