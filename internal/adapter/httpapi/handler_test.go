package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carvoice/carbot/internal/application/assistant"
	domainintent "github.com/carvoice/carbot/internal/domain/intent"
	"github.com/carvoice/carbot/internal/infrastructure/reliability"
)

// stubAssistant は固定応答を返すテスト用アシスタント
type stubAssistant struct {
	lastRequest assistant.Request
	response    assistant.Response
}

func (s *stubAssistant) Process(ctx context.Context, req assistant.Request) assistant.Response {
	s.lastRequest = req

	resp := s.response
	resp.SessionID = req.SessionID
	return resp
}

func (s *stubAssistant) ProviderIDs() []string {
	return []string{"openai"}
}

func newTestHandler(stub *stubAssistant) *Handler {
	return NewHandler(stub, reliability.NewBreaker(3, 30*time.Second), nil)
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(&stubAssistant{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Health response is not valid JSON: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", body["status"])
	}

	providers, ok := body["providers"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected providers map in health response")
	}

	if _, ok := providers["openai"]; !ok {
		t.Error("Expected breaker state for provider 'openai'")
	}
}

func TestHandleAssist(t *testing.T) {
	stub := &stubAssistant{
		response: assistant.Response{
			Text:   "Setting course for Shibuya.",
			Intent: domainintent.IntentNavigation,
		},
	}
	handler := newTestHandler(stub)

	payload, _ := json.Marshal(AssistRequest{
		Command:   "navigate to Shibuya",
		SessionID: "session-1",
		Fresh:     true,
	})

	req := httptest.NewRequest(http.MethodPost, "/assist", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp assistant.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Assist response is not valid JSON: %v", err)
	}

	if resp.Text != "Setting course for Shibuya." {
		t.Errorf("Expected assistant text, got '%s'", resp.Text)
	}

	if resp.Intent != domainintent.IntentNavigation {
		t.Errorf("Expected intent 'navigation', got '%s'", resp.Intent)
	}

	if resp.SessionID != "session-1" {
		t.Errorf("Expected caller session ID to be preserved, got '%s'", resp.SessionID)
	}

	if !stub.lastRequest.Fresh {
		t.Error("Expected fresh flag passed through to the assistant")
	}
}

func TestHandleAssistMintsSessionID(t *testing.T) {
	stub := &stubAssistant{response: assistant.Response{Text: "ok"}}
	handler := newTestHandler(stub)

	payload, _ := json.Marshal(AssistRequest{Command: "hello"})

	req := httptest.NewRequest(http.MethodPost, "/assist", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	var resp assistant.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if resp.SessionID == "" {
		t.Error("Expected a minted session ID when the caller omits one")
	}
}

func TestHandleAssistCarContext(t *testing.T) {
	stub := &stubAssistant{response: assistant.Response{Text: "ok"}}
	handler := newTestHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/assist",
		bytes.NewReader([]byte(`{"command": "how far", "carContext": {"speed": 80, "destination": "Osaka"}}`)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if stub.lastRequest.CarState.Speed != 80 {
		t.Errorf("Expected car speed 80, got %v", stub.lastRequest.CarState.Speed)
	}

	if stub.lastRequest.CarState.Destination != "Osaka" {
		t.Errorf("Expected destination 'Osaka', got '%s'", stub.lastRequest.CarState.Destination)
	}
}

func TestHandleAssistBadRequests(t *testing.T) {
	handler := newTestHandler(&stubAssistant{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing command", `{"sessionId": "s1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/assist", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	handler := newTestHandler(&stubAssistant{})

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	// /eventsはストリーマー未設定なら404
	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for /events without streamer, got %d", rec.Code)
	}
}
