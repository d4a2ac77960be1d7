package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carvoice/carbot/internal/application/assistant"
	"github.com/carvoice/carbot/internal/domain/car"
	"github.com/carvoice/carbot/internal/infrastructure/reliability"
)

// Assistant はコマンド処理のインターフェース
type Assistant interface {
	Process(ctx context.Context, req assistant.Request) assistant.Response
	ProviderIDs() []string
}

// AssistRequest は/assistのリクエストボディ
type AssistRequest struct {
	Command    string     `json:"command"`
	SessionID  string     `json:"sessionId,omitempty"`
	CarContext *car.State `json:"carContext,omitempty"`
	Fresh      bool       `json:"fresh,omitempty"`
}

// Handler は車載ヘッドユニット向けのREST front door
type Handler struct {
	assistant Assistant
	breaker   *reliability.Breaker
	events    *EventStreamer
	log       *logrus.Entry
}

// NewHandler は新しいHandlerを作成
// eventsはnil可（その場合/eventsは404）
func NewHandler(asst Assistant, breaker *reliability.Breaker, events *EventStreamer) *Handler {
	return &Handler{
		assistant: asst,
		breaker:   breaker,
		events:    events,
		log:       logrus.WithField("component", "httpapi"),
	}
}

// ServeHTTP はHTTPリクエストを処理
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.route(rec, r)

	h.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start).String(),
	}).Info("request handled")
}

// route はパスとメソッドで振り分け
func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		h.handleHealth(w, r)
	case r.URL.Path == "/assist" && r.Method == http.MethodPost:
		h.handleAssist(w, r)
	case r.URL.Path == "/events" && r.Method == http.MethodGet && h.events != nil:
		h.events.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleHealth はヘルスチェック
// プロバイダーごとのブレーカー状態も返す
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := make(map[string]reliability.BreakerState)
	for _, id := range h.assistant.ProviderIDs() {
		providers[id] = h.breaker.State(id)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": providers,
	})
}

// handleAssist は音声コマンドを処理
func (h *Handler) handleAssist(w http.ResponseWriter, r *http.Request) {
	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
		return
	}

	// セッションID未指定時はここで採番する
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var state car.State
	if req.CarContext != nil {
		state = *req.CarContext
	}

	resp := h.assistant.Process(r.Context(), assistant.Request{
		SessionID: sessionID,
		Command:   req.Command,
		CarState:  state,
		Fresh:     req.Fresh,
	})

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON はJSONレスポンスを書き出す
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusRecorder はログ用にステータスコードを記録する
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack はwebsocketアップグレードのために下位のHijackerへ委譲する
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}
