package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Backend against any OpenAI-chat-completions-compatible
// endpoint, grounded on the teacher's internal/provider/openrouter.go
// (itself built on the same openai-go client against a different
// base URL). MODEL_PROVIDER=openai and any OpenAI-wire-compatible LLM_URL
// both resolve to this backend.
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAI builds an OpenAI-compatible backend.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAI{client: &client, model: model}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) ContextWindow(model string) int {
	return 128_000
}

// Prompt issues a non-streaming chat completion and replays it as a single
// message_start/message_end pair, since the "streaming" contract only
// needs to deliver complete transcript turns to the agent loop.
func (o *OpenAI) Prompt(ctx context.Context, req Request) (<-chan BackendEvent, error) {
	events := make(chan BackendEvent, 4)

	go func() {
		defer close(events)

		events <- BackendEvent{Type: EventMessageStart, Role: RoleAssistant}

		messages := buildOpenAIMessages(req)
		tools := buildOpenAITools(req.Tools)

		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = 8192
		}

		model := req.Model
		if model == "" {
			model = o.model
		}

		params := openai.ChatCompletionNewParams{
			Model:     model,
			Messages:  messages,
			MaxTokens: openai.Int(int64(maxTokens)),
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				events <- BackendEvent{Type: EventMessageEnd, Role: RoleAssistant, StopReason: "aborted"}
				return
			}
			events <- BackendEvent{Type: EventMessageEnd, Role: RoleAssistant, StopReason: "error", ErrorMessage: err.Error()}
			return
		}

		content, stopReason := parseOpenAIChoice(resp)
		usage := Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}

		events <- BackendEvent{
			Type:       EventMessageEnd,
			Role:       RoleAssistant,
			Content:    content,
			StopReason: stopReason,
			Usage:      usage,
		}
	}()

	return events, nil
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Transcript {
		switch msg.Role {
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.ToolResult))

		case RoleUser:
			messages = append(messages, openai.UserMessage(textOf(msg.Content)))

		case RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			var text string
			for _, p := range msg.Content {
				switch p.Kind {
				case PartText:
					text += p.Text
				case PartToolUse:
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: p.ToolCallID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      p.ToolName,
							Arguments: string(p.Args),
						},
					})
				}
			}
			if len(toolCalls) > 0 {
				assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
				assistant.Content.OfString = openai.String(text)
				messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			} else {
				messages = append(messages, openai.AssistantMessage(text))
			}
		}
	}

	if req.UserMessage != "" {
		messages = append(messages, openai.UserMessage(req.UserMessage))
	}

	return messages
}

func textOf(parts []Part) string {
	var out string
	for _, p := range parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

func buildOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		var schema openai.FunctionParameters
		_ = json.Unmarshal(t.Schema, &schema)

		result = append(result, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  schema,
			},
		})
	}
	return result
}

func parseOpenAIChoice(resp *openai.ChatCompletion) ([]Part, string) {
	var content []Part
	stopReason := "endTurn"

	if len(resp.Choices) == 0 {
		return content, stopReason
	}

	choice := resp.Choices[0]
	msg := choice.Message

	if msg.Content != "" {
		content = append(content, Part{Kind: PartText, Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		content = append(content, Part{
			Kind:       PartToolUse,
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Args:       json.RawMessage(tc.Function.Arguments),
		})
	}

	if choice.FinishReason == "tool_calls" {
		stopReason = "toolUse"
	}

	return content, stopReason
}
