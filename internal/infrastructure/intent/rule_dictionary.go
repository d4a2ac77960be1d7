package intent

import (
	"strings"

	domain "github.com/carvoice/carbot/internal/domain/intent"
)

// rule は単一のキーワードルールを表す
type rule struct {
	intent   domain.Intent
	keywords []string
	response string
	actions  []domain.Action
}

// RuleDictionary はキーワードベースの意図判定と決定的フォールバック応答
// 全プロバイダー障害時の最終フォールバックであり、決して失敗しない
// ルールは優先順に評価し、最初に一致したカテゴリを採用する
type RuleDictionary struct {
	rules    []rule
	fallback rule
}

// NewRuleDictionary は新しいRuleDictionaryを作成
func NewRuleDictionary() *RuleDictionary {
	return &RuleDictionary{
		rules: []rule{
			// 緊急（最優先・リモート呼び出し前に短絡する）
			{
				intent:   domain.IntentEmergency,
				keywords: []string{"emergency", "accident", "crash", "help me", "call 911", "call an ambulance", "i'm hurt", "im hurt"},
				response: "Emergency detected. Contacting emergency services and sharing your location now. Stay calm.",
				actions: []domain.Action{
					{Type: "contact_emergency_services", Label: "Contact emergency services"},
					{Type: "share_location", Label: "Share current location"},
				},
			},
			// ナビゲーション
			{
				intent:   domain.IntentNavigation,
				keywords: []string{"navigate", "directions", "route", "take me to", "drive to", "how far", "destination"},
				response: "I can help with navigation. Please tell me your destination and I'll set up the route.",
			},
			// 音楽
			{
				intent:   domain.IntentMusic,
				keywords: []string{"play", "music", "song", "playlist", "radio", "volume", "pause", "next track", "skip"},
				response: "Sure, I can control your music. What would you like to listen to?",
			},
			// 電話
			{
				intent:   domain.IntentPhone,
				keywords: []string{"call", "phone", "dial", "ring", "contact"},
				response: "I can place a call for you. Who would you like to call?",
			},
			// 天気
			{
				intent:   domain.IntentWeather,
				keywords: []string{"weather", "temperature", "rain", "forecast", "sunny", "snow"},
				response: "I don't have live weather data right now, but I'd suggest checking conditions before a long drive.",
			},
		},
		// 一致なし → 一般会話
		fallback: rule{
			intent:   domain.IntentConversation,
			response: "Hello! I'm your car assistant. How can I help you while driving?",
		},
	}
}

// Match は入力テキストをルールと照合し、一致した意図を返す
func (d *RuleDictionary) Match(text string) (domain.Intent, bool) {
	lowered := strings.ToLower(text)

	for _, r := range d.rules {
		for _, keyword := range r.keywords {
			if strings.Contains(lowered, keyword) {
				return r.intent, true
			}
		}
	}

	return "", false
}

// IsEmergency は入力が緊急カテゴリに一致するかを判定
func (d *RuleDictionary) IsEmergency(text string) bool {
	in, ok := d.Match(text)
	return ok && in.IsEmergency()
}

// Respond は入力テキストに対する決定的応答を生成
// どんな入力（空文字列・バイナリ混じり含む）でも必ず結果を返す
func (d *RuleDictionary) Respond(text string) domain.Result {
	lowered := strings.ToLower(text)

	for _, r := range d.rules {
		for _, keyword := range r.keywords {
			if strings.Contains(lowered, keyword) {
				return domain.NewResult(r.response, r.intent, r.actions, true)
			}
		}
	}

	return domain.NewResult(d.fallback.response, d.fallback.intent, nil, true)
}
