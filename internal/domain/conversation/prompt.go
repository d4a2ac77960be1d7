package conversation

import (
	"strings"

	"github.com/carvoice/carbot/internal/domain/car"
)

// BasePrompt は車載アシスタントの基本システムプロンプト
const BasePrompt = `You are CarBot, a voice assistant built into a car. ` +
	`Answer briefly and clearly, as the driver is listening while driving. ` +
	`Keep responses under two sentences unless asked for detail. ` +
	`Never suggest actions that would distract the driver.`

// BuildSystemPrompt は基本プロンプトと車両状態からシステムプロンプトを構築
func BuildSystemPrompt(state car.State) string {
	fragment := state.PromptFragment()
	if fragment == "" {
		return BasePrompt
	}

	return strings.Join([]string{BasePrompt, fragment}, "\n\n")
}
