package intent

import (
	"strings"
	"testing"

	domain "github.com/carvoice/carbot/internal/domain/intent"
)

func TestMatch(t *testing.T) {
	d := NewRuleDictionary()

	tests := []struct {
		input  string
		intent domain.Intent
		ok     bool
	}{
		{"There's been an accident, call 911", domain.IntentEmergency, true},
		{"Navigate to the nearest gas station", domain.IntentNavigation, true},
		{"Play some jazz music", domain.IntentMusic, true},
		{"Call my wife", domain.IntentPhone, true},
		{"What's the weather like today", domain.IntentWeather, true},
		{"Tell me a story", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			in, ok := d.Match(tt.input)
			if ok != tt.ok {
				t.Fatalf("Expected match=%v for '%s', got %v", tt.ok, tt.input, ok)
			}
			if ok && in != tt.intent {
				t.Errorf("Expected intent '%s', got '%s'", tt.intent, in)
			}
		})
	}
}

func TestMatchPriorityOrder(t *testing.T) {
	d := NewRuleDictionary()

	// 緊急キーワードと音楽キーワードの両方を含む場合は緊急が勝つ
	in, ok := d.Match("play music there was a crash help me")
	if !ok {
		t.Fatal("Expected a match")
	}

	if in != domain.IntentEmergency {
		t.Errorf("Expected emergency to win over music, got '%s'", in)
	}
}

func TestRespondNeverFails(t *testing.T) {
	d := NewRuleDictionary()

	// 空文字列・バイナリ混じり・巨大入力を含め、必ず結果を返す
	inputs := []string{
		"",
		"\x00\xff\xfe binary garbage",
		strings.Repeat("a", 100000),
		"日本語の入力",
		"🚗🎵",
	}

	for _, input := range inputs {
		result := d.Respond(input)

		if result.Text == "" {
			t.Errorf("Expected non-empty response for input %q", input)
		}

		if result.Intent == "" {
			t.Errorf("Expected a categorized intent for input %q", input)
		}

		if !result.Fallback {
			t.Errorf("Expected fallback flag set for input %q", input)
		}
	}
}

func TestRespondGenericGreeting(t *testing.T) {
	d := NewRuleDictionary()

	result := d.Respond("Hello CarBot")

	if result.Intent != domain.IntentConversation {
		t.Errorf("Expected intent 'conversation', got '%s'", result.Intent)
	}

	if !strings.Contains(strings.ToLower(result.Text), "hello") {
		t.Errorf("Expected a greeting, got '%s'", result.Text)
	}
}

func TestRespondEmergencyActions(t *testing.T) {
	d := NewRuleDictionary()

	result := d.Respond("emergency, I need help")

	if result.Intent != domain.IntentEmergency {
		t.Fatalf("Expected emergency intent, got '%s'", result.Intent)
	}

	if len(result.Actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(result.Actions))
	}

	types := map[string]bool{}
	for _, action := range result.Actions {
		types[action.Type] = true
	}

	if !types["contact_emergency_services"] || !types["share_location"] {
		t.Errorf("Expected emergency service and location actions, got %v", result.Actions)
	}
}

func TestIsEmergency(t *testing.T) {
	d := NewRuleDictionary()

	if !d.IsEmergency("HELP ME, we crashed") {
		t.Error("Expected emergency detection to be case-insensitive")
	}

	if d.IsEmergency("play my driving playlist") {
		t.Error("Expected music request to not be an emergency")
	}
}
