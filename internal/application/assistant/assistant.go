package assistant

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/carvoice/carbot/internal/application/bus"
	"github.com/carvoice/carbot/internal/domain/car"
	"github.com/carvoice/carbot/internal/domain/conversation"
	domainintent "github.com/carvoice/carbot/internal/domain/intent"
	"github.com/carvoice/carbot/internal/domain/llm"
	"github.com/carvoice/carbot/internal/infrastructure/cache"
	ruleintent "github.com/carvoice/carbot/internal/infrastructure/intent"
	"github.com/carvoice/carbot/internal/infrastructure/session"
)

// Request はアシスタント処理リクエスト
// Commandは音声認識済みのテキスト（音声処理は外部コラボレータの責務）
type Request struct {
	SessionID string
	Command   string
	CarState  car.State
	Fresh     bool // trueならキャッシュを参照しない
}

// Response はアシスタント処理レスポンス
// Fallbackがtrueの場合、テキストはルールベース応答（AI応答ではない）
type Response struct {
	SessionID string                `json:"sessionId"`
	Text      string                `json:"response"`
	Intent    domainintent.Intent   `json:"intent"`
	Actions   []domainintent.Action `json:"actions"`
	Provider  string                `json:"provider,omitempty"`
	Cached    bool                  `json:"cached"`
	Fallback  bool                  `json:"fallback"`
}

// ProviderCaller はリトライ・ブレーカー付き呼び出しのインターフェース
type ProviderCaller interface {
	Call(ctx context.Context, provider llm.Provider, req llm.GenerateRequest) (llm.GenerationResult, error)
}

// GenerationOptions は生成パラメータ
type GenerationOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Assistant は音声コマンド処理を統括するオーケストレータ
// 緊急短絡 → キャッシュ → プロバイダー連鎖 → ルールベースフォールバック の順で処理する
type Assistant struct {
	providers []llm.Provider // 設定順に試行する
	caller    ProviderCaller
	cache     *cache.ResponseCache
	rules     *ruleintent.RuleDictionary
	sessions  *session.Store
	events    *bus.Bus
	options   GenerationOptions
	log       *logrus.Entry
}

// New は新しいAssistantを作成
// providersは空でもよい（その場合は常にフォールバック応答）
func New(
	providers []llm.Provider,
	caller ProviderCaller,
	responseCache *cache.ResponseCache,
	rules *ruleintent.RuleDictionary,
	sessions *session.Store,
	events *bus.Bus,
	options GenerationOptions,
) *Assistant {
	return &Assistant{
		providers: providers,
		caller:    caller,
		cache:     responseCache,
		rules:     rules,
		sessions:  sessions,
		events:    events,
		options:   options,
		log:       logrus.WithField("component", "assistant"),
	}
}

// ProviderIDs は設定済みプロバイダーIDを試行順で返す
func (a *Assistant) ProviderIDs() []string {
	ids := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Process は1ターン分のコマンドを処理
// エラーは返さない：全プロバイダーが失敗してもフォールバック応答を必ず返す
func (a *Assistant) Process(ctx context.Context, req Request) Response {
	a.publish(bus.EventCommandReceived, req.SessionID, map[string]interface{}{
		"command": req.Command,
	})

	// 同一セッションの並行ターンはここで直列化される
	conv, release := a.sessions.Acquire(req.SessionID)
	defer release()

	// 1. 緊急判定：リモート呼び出しの前に短絡する（安全要件）
	// 緊急応答はいかなるリモート呼び出しにも依存しない
	if a.rules.IsEmergency(req.Command) {
		result := a.rules.Respond(req.Command)
		a.publish(bus.EventEmergencyDetected, req.SessionID, nil)

		conv.AddUserMessage(req.Command)
		conv.AddAssistantMessage(result.Text)

		return Response{
			SessionID: req.SessionID,
			Text:      result.Text,
			Intent:    result.Intent,
			Actions:   result.Actions,
			Fallback:  true,
		}
	}

	// 2. メッセージ列を構築
	conv.AddUserMessage(req.Command)
	systemPrompt := conversation.BuildSystemPrompt(req.CarState)

	genReq := llm.GenerateRequest{
		Messages:    conv.Snapshot(systemPrompt),
		MaxTokens:   a.options.MaxTokens,
		Temperature: a.options.Temperature,
		TopP:        a.options.TopP,
	}

	// 3. プロバイダーを設定順に試行
	for _, provider := range a.providers {
		key := cache.Key(req.Command, a.options.Temperature, provider.ID())

		// キャッシュはリトライ制御の前に参照する（Fresh指定時は読み飛ばす）
		if !req.Fresh {
			if cached, ok := a.cache.Get(key); ok {
				conv.AddAssistantMessage(cached.Content)
				return a.aiResponse(req, cached)
			}
		}

		result, err := a.caller.Call(ctx, provider, genReq)
		if err == nil {
			a.cache.Put(key, result)
			a.publish(bus.EventProviderOK, req.SessionID, map[string]interface{}{
				"provider": result.ProviderID,
			})

			conv.AddAssistantMessage(result.Content)
			return a.aiResponse(req, result)
		}

		// ブレーカー開放・リトライ枯渇・設定不備のいずれでも次のプロバイダーへ
		var circuitErr *llm.CircuitOpenError
		a.log.WithFields(logrus.Fields{
			"provider":     provider.ID(),
			"circuit_open": errors.As(err, &circuitErr),
			"error":        err.Error(),
		}).Warn("provider unavailable, trying next")
	}

	// 4. 全滅またはプロバイダー未設定：ルールベースフォールバック
	result := a.rules.Respond(req.Command)
	a.publish(bus.EventFallbackUsed, req.SessionID, map[string]interface{}{
		"intent": result.Intent.String(),
	})

	conv.AddAssistantMessage(result.Text)

	return Response{
		SessionID: req.SessionID,
		Text:      result.Text,
		Intent:    result.Intent,
		Actions:   result.Actions,
		Fallback:  true,
	}
}

// Submit は非同期でコマンドを処理し、結果チャネルを返す
// ホストするサーバーが多セッションを並行処理するための契約
func (a *Assistant) Submit(ctx context.Context, req Request) <-chan Response {
	ch := make(chan Response, 1)

	go func() {
		defer close(ch)
		ch <- a.Process(ctx, req)
	}()

	return ch
}

// aiResponse はAI応答からレスポンスを構築
// 意図タグはルール辞書の一致結果（一致なしはconversation）
func (a *Assistant) aiResponse(req Request, result llm.GenerationResult) Response {
	matched, ok := a.rules.Match(req.Command)
	if !ok {
		matched = domainintent.IntentConversation
	}

	return Response{
		SessionID: req.SessionID,
		Text:      result.Content,
		Intent:    matched,
		Provider:  result.ProviderID,
		Cached:    result.Cached,
		Fallback:  false,
	}
}

// publish はイベントを発行
func (a *Assistant) publish(eventType bus.EventType, sessionID string, payload map[string]interface{}) {
	if a.events == nil {
		return
	}

	a.events.Publish(bus.Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
	})
}
