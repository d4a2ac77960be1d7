package bus

import (
	"sync"
	"time"
)

// EventType はアシスタントイベントの種別
type EventType string

// イベント種別の定数定義
const (
	EventCommandReceived   EventType = "command_received"
	EventProviderOK        EventType = "provider_ok"
	EventFallbackUsed      EventType = "fallback_used"
	EventEmergencyDetected EventType = "emergency_detected"
)

// Event はバスを流れるイベント
// コールバックやブロードキャストの代わりに明示的なチャネルで伝搬する
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// subscriberBuffer は購読チャネルのバッファサイズ
const subscriberBuffer = 16

// Bus はプロセス内のイベントバス
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
}

// New は新しいBusを作成
func New() *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe は購読チャネルと購読解除関数を返す
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if ch, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish はイベントを全購読者へ配信
// 購読者のバッファが一杯の場合はそのイベントを破棄する（配信でブロックしない）
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
