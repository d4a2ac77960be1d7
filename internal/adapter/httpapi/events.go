package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/carvoice/carbot/internal/application/bus"
)

// EventStreamer はアシスタントイベントをwebsocketで配信する
// ヘッドユニット側のUI更新（ウェイク検知・応答完了等）に使う
type EventStreamer struct {
	events   *bus.Bus
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewEventStreamer は新しいEventStreamerを作成
func NewEventStreamer(events *bus.Bus) *EventStreamer {
	return &EventStreamer{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// ヘッドユニットはローカル接続のためオリジン検証は行わない
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logrus.WithField("component", "httpapi.events"),
	}
}

// ServeHTTP は接続をwebsocketへアップグレードし、イベントを流し続ける
func (s *EventStreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithField("error", err.Error()).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	// クライアント切断を検知するための読み取りループ
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
