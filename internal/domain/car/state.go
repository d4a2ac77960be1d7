package car

import (
	"fmt"
	"strings"
)

// State は車両状態のスナップショットを表す値オブジェクト
// 車載プラットフォームから都度取得し、読み取り専用として扱う
type State struct {
	Speed            float64 `json:"speed,omitempty"`
	Location         string  `json:"location,omitempty"`
	Destination      string  `json:"destination,omitempty"`
	NavigationActive bool    `json:"navigationActive,omitempty"`
	MusicPlaying     bool    `json:"musicPlaying,omitempty"`
	CurrentSong      string  `json:"currentSong,omitempty"`
}

// IsZero は全フィールドが未設定かを判定
func (s State) IsZero() bool {
	return s == State{}
}

// PromptFragment はシステムプロンプトに埋め込む車両状態の説明文を返す
// 未設定のフィールドは出力しない
func (s State) PromptFragment() string {
	if s.IsZero() {
		return ""
	}

	var lines []string

	if s.Speed > 0 {
		lines = append(lines, fmt.Sprintf("Current speed: %.0f km/h", s.Speed))
	}

	if s.Location != "" {
		lines = append(lines, fmt.Sprintf("Current location: %s", s.Location))
	}

	if s.NavigationActive {
		if s.Destination != "" {
			lines = append(lines, fmt.Sprintf("Navigation active, destination: %s", s.Destination))
		} else {
			lines = append(lines, "Navigation active")
		}
	} else if s.Destination != "" {
		lines = append(lines, fmt.Sprintf("Destination set: %s", s.Destination))
	}

	if s.MusicPlaying {
		if s.CurrentSong != "" {
			lines = append(lines, fmt.Sprintf("Music playing: %s", s.CurrentSong))
		} else {
			lines = append(lines, "Music playing")
		}
	}

	if len(lines) == 0 {
		return ""
	}

	return "Car status:\n" + strings.Join(lines, "\n")
}
