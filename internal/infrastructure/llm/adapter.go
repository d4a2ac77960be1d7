package llm

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	domain "github.com/carvoice/carbot/internal/domain/llm"
)

// defaultMaxTokens はmax_tokens未指定時の既定値
// Anthropic APIはmax_tokensが必須のため、ここで補完する
const defaultMaxTokens = 1024

// BuildRequest は正規化リクエストをプロバイダー固有のJSONに変換
// メッセージの欠落・並べ替えは行わない（systemの先頭分離を除く）
func BuildRequest(req domain.GenerateRequest, cfg ProviderConfig, model string) ([]byte, error) {
	if model == "" {
		return nil, &domain.AdapterError{ProviderID: cfg.ID, Reason: "model is required"}
	}

	if len(req.Messages) == 0 {
		return nil, &domain.AdapterError{ProviderID: cfg.ID, Reason: "messages must not be empty"}
	}

	var body map[string]interface{}

	switch cfg.RequestShape {
	case RequestShapeOpenAI:
		body = buildOpenAIRequest(req, model)
	case RequestShapeAnthropic:
		body = buildAnthropicRequest(req, model)
	case RequestShapeGemini:
		body = buildGeminiRequest(req)
	default:
		return nil, &domain.AdapterError{
			ProviderID: cfg.ID,
			Reason:     fmt.Sprintf("unsupported request shape: %s", cfg.RequestShape),
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.AdapterError{
			ProviderID: cfg.ID,
			Reason:     fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	return data, nil
}

// buildOpenAIRequest はOpenAI互換形式のリクエストを構築
func buildOpenAIRequest(req domain.GenerateRequest, model string) map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, map[string]interface{}{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}

	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}

	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}

	if len(req.Functions) > 0 {
		tools := make([]map[string]interface{}, 0, len(req.Functions))
		for _, fn := range req.Functions {
			tools = append(tools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        fn.Name,
					"description": fn.Description,
					"parameters":  fn.Parameters,
				},
			})
		}
		body["tools"] = tools
	}

	return body
}

// buildAnthropicRequest はAnthropic Messages API形式のリクエストを構築
// systemロールはmessages配列に入れられないため、トップレベルのsystemに分離する
func buildAnthropicRequest(req domain.GenerateRequest, model string) map[string]interface{} {
	var system string
	messages := make([]map[string]interface{}, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			system = msg.Content
			continue
		}

		role := string(msg.Role)
		if msg.Role == domain.RoleFunction {
			role = string(domain.RoleUser)
		}

		messages = append(messages, map[string]interface{}{
			"role":    role,
			"content": msg.Content,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := map[string]interface{}{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}

	if system != "" {
		body["system"] = system
	}

	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}

	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}

	return body
}

// buildGeminiRequest はGemini generateContent形式のリクエストを構築
// assistantロールはmodelに改名し、systemはsystemInstructionに分離する
func buildGeminiRequest(req domain.GenerateRequest) map[string]interface{} {
	var system string
	contents := make([]map[string]interface{}, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			system = msg.Content
			continue
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}

		contents = append(contents, map[string]interface{}{
			"role": role,
			"parts": []map[string]interface{}{
				{"text": msg.Content},
			},
		})
	}

	body := map[string]interface{}{
		"contents": contents,
	}

	if system != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": system},
			},
		}
	}

	generationConfig := map[string]interface{}{}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		generationConfig["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		generationConfig["topP"] = req.TopP
	}
	if len(generationConfig) > 0 {
		body["generationConfig"] = generationConfig
	}

	return body
}

// responsePaths はレスポンス形式ごとのJSONパス定義
type responsePaths struct {
	text         string
	inputTokens  string
	outputTokens string
	finishReason string
	model        string
}

// responsePathTable はレスポンス形式とJSONパスの対応表
var responsePathTable = map[ResponseShape]responsePaths{
	ResponseShapeOpenAI: {
		text:         "choices.0.message.content",
		inputTokens:  "usage.prompt_tokens",
		outputTokens: "usage.completion_tokens",
		finishReason: "choices.0.finish_reason",
		model:        "model",
	},
	ResponseShapeAnthropic: {
		text:         "content.0.text",
		inputTokens:  "usage.input_tokens",
		outputTokens: "usage.output_tokens",
		finishReason: "stop_reason",
		model:        "model",
	},
	ResponseShapeGemini: {
		text:         "candidates.0.content.parts.0.text",
		inputTokens:  "usageMetadata.promptTokenCount",
		outputTokens: "usageMetadata.candidatesTokenCount",
		finishReason: "candidates.0.finishReason",
		model:        "modelVersion",
	},
}

// ParseResponse はプロバイダー固有のレスポンスから生成結果を抽出
// 期待するテキストフィールドが存在しない場合はMalformedResponseErrorを返す
// （ネットワーク障害と区別し、リトライ対象外として扱う）
func ParseResponse(body []byte, cfg ProviderConfig, model string) (domain.GenerationResult, error) {
	paths, ok := responsePathTable[cfg.ResponseShape]
	if !ok {
		return domain.GenerationResult{}, &domain.MalformedResponseError{
			ProviderID: cfg.ID,
			Reason:     fmt.Sprintf("unsupported response shape: %s", cfg.ResponseShape),
		}
	}

	if !gjson.ValidBytes(body) {
		return domain.GenerationResult{}, &domain.MalformedResponseError{
			ProviderID: cfg.ID,
			Reason:     "response body is not valid JSON",
		}
	}

	text := gjson.GetBytes(body, paths.text)
	if !text.Exists() {
		return domain.GenerationResult{}, &domain.MalformedResponseError{
			ProviderID: cfg.ID,
			Reason:     fmt.Sprintf("expected text field %q is absent", paths.text),
		}
	}

	modelID := gjson.GetBytes(body, paths.model).String()
	if modelID == "" {
		modelID = model
	}

	return domain.GenerationResult{
		Content:      text.String(),
		ProviderID:   cfg.ID,
		ModelID:      modelID,
		InputTokens:  int(gjson.GetBytes(body, paths.inputTokens).Int()),
		OutputTokens: int(gjson.GetBytes(body, paths.outputTokens).Int()),
		FinishReason: gjson.GetBytes(body, paths.finishReason).String(),
		Cached:       false,
	}, nil
}
