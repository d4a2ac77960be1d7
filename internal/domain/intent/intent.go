package intent

// Intent はユーザー発話の意図カテゴリを表す型
type Intent string

// 意図カテゴリの定数定義
// 優先順位はこの順（emergencyが最優先）
const (
	IntentEmergency    Intent = "emergency"    // 緊急（最優先・即時応答）
	IntentNavigation   Intent = "navigation"   // ナビゲーション
	IntentMusic        Intent = "music"        // 音楽操作
	IntentPhone        Intent = "phone"        // 電話
	IntentWeather      Intent = "weather"      // 天気
	IntentConversation Intent = "conversation" // 一般会話（デフォルト）
)

// String はIntentの文字列表現を返す
func (i Intent) String() string {
	return string(i)
}

// IsEmergency は緊急カテゴリかを判定
func (i Intent) IsEmergency() bool {
	return i == IntentEmergency
}

// Action は下流システムへ通知する構造化アクション
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Result は意図判定と応答生成の結果を表す
type Result struct {
	Text     string   // 応答テキスト
	Intent   Intent   // 判定された意図
	Actions  []Action // 付随アクション（緊急時等）
	Fallback bool     // ルールベース応答かどうか
}

// NewResult は新しいResultを作成
func NewResult(text string, in Intent, actions []Action, fallback bool) Result {
	return Result{
		Text:     text,
		Intent:   in,
		Actions:  actions,
		Fallback: fallback,
	}
}
