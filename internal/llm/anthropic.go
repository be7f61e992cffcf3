package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicPricing holds per-million-token USD prices (input, output),
// keyed by model prefix, and is read only by Cost; unknown models cost 0.
// Grounded on nothing in the pack (no example prices tokens). Prompt does
// not apply these prices: the Usage it reports carries output token counts
// and no cost fields.
var anthropicPricing = map[string][2]float64{
	"claude-opus":   {15.00, 75.00},
	"claude-sonnet": {3.00, 15.00},
	"claude-haiku":  {0.80, 4.00},
}

var anthropicContextWindows = map[string]int{
	"claude-opus":   200_000,
	"claude-sonnet": 200_000,
	"claude-haiku":  200_000,
}

// Anthropic implements Backend against the Claude Messages API, grounded
// on the teacher's internal/provider/anthropic.go.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// AnthropicConfig configures an Anthropic backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewAnthropic builds an Anthropic backend.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: client, model: model}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) ContextWindow(model string) int {
	for prefix, window := range anthropicContextWindows {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return window
		}
	}
	return 200_000
}

func (a *Anthropic) Prompt(ctx context.Context, req Request) (<-chan BackendEvent, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	messages := buildAnthropicMessages(req)
	tools := buildAnthropicTools(req.Tools)

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(model)),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if req.SystemPrompt != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(req.SystemPrompt)})
	}
	if len(tools) > 0 {
		params.Tools = anthropic.F(tools)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	events := make(chan BackendEvent, 64)

	go func() {
		defer close(events)
		defer stream.Close()

		events <- BackendEvent{Type: EventMessageStart, Role: RoleAssistant}

		var content []Part
		var currentTool *Part
		var toolInputBuffer string
		var usage Usage
		stopReason := ""

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case anthropic.MessageStreamEventTypeContentBlockStart:
				if cb, ok := event.ContentBlock.(anthropic.ContentBlockStartEventContentBlock); ok {
					if cb.Type == anthropic.ContentBlockStartEventContentBlockTypeToolUse {
						currentTool = &Part{Kind: PartToolUse, ToolCallID: cb.ID, ToolName: cb.Name}
						toolInputBuffer = ""
					}
				}

			case anthropic.MessageStreamEventTypeContentBlockDelta:
				if delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta); ok {
					switch delta.Type {
					case "text_delta":
						if delta.Text != "" {
							content = appendText(content, delta.Text)
						}
					case "thinking_delta":
						if delta.Thinking != "" {
							content = appendThinking(content, delta.Thinking)
						}
					case "input_json_delta":
						toolInputBuffer += delta.PartialJSON
					}
				}

			case anthropic.MessageStreamEventTypeContentBlockStop:
				if currentTool != nil {
					currentTool.Args = json.RawMessage(toolInputBuffer)
					content = append(content, *currentTool)
					currentTool = nil
					toolInputBuffer = ""
				}

			case anthropic.MessageStreamEventTypeMessageDelta:
				if delta, ok := event.Delta.(anthropic.MessageDeltaEventDelta); ok && delta.StopReason != "" {
					stopReason = mapAnthropicStopReason(string(delta.StopReason))
				}
				usage.OutputTokens += int(event.Usage.OutputTokens)

			case anthropic.MessageStreamEventTypeMessageStop:
				// terminal
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				events <- BackendEvent{Type: EventMessageEnd, Role: RoleAssistant, StopReason: "aborted"}
				return
			}
			events <- BackendEvent{Type: EventMessageEnd, Role: RoleAssistant, StopReason: "error", ErrorMessage: err.Error()}
			return
		}

		if stopReason == "" {
			stopReason = "endTurn"
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

func appendText(content []Part, text string) []Part {
	if n := len(content); n > 0 && content[n-1].Kind == PartText {
		content[n-1].Text += text
		return content
	}
	return append(content, Part{Kind: PartText, Text: text})
}

func appendThinking(content []Part, text string) []Part {
	if n := len(content); n > 0 && content[n-1].Kind == PartThinking {
		content[n-1].Text += text
		return content
	}
	return append(content, Part{Kind: PartThinking, Text: text})
}

// mapAnthropicStopReason maps the wire stop reason to the vocabulary used
// by spec.md §4.6 routing rules ("toolUse" vs. anything else is "final").
func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "toolUse"
	default:
		return "endTurn"
	}
}

func buildAnthropicMessages(req Request) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range req.Transcript {
		switch msg.Role {
		case RoleTool:
			result = append(result, anthropic.MessageParam{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.ToolResultBlockParam{
						Type:      anthropic.F(anthropic.ToolResultBlockParamTypeToolResult),
						ToolUseID: anthropic.F(msg.ToolCallID),
						Content: anthropic.F([]anthropic.ToolResultBlockParamContentUnion{
							anthropic.TextBlockParam{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F(msg.ToolResult)},
						}),
						IsError: anthropic.F(msg.ToolIsError),
					},
				}),
			})

		case RoleUser:
			result = append(result, anthropic.MessageParam{
				Role:    anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F(partsToContentBlocks(msg.Content)),
			})

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range msg.Content {
				switch p.Kind {
				case PartText:
					if p.Text != "" {
						blocks = append(blocks, anthropic.TextBlockParam{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F(p.Text)})
					}
				case PartToolUse:
					var input interface{}
					if len(p.Args) > 0 {
						_ = json.Unmarshal(p.Args, &input)
					}
					if input == nil {
						input = map[string]interface{}{}
					}
					blocks = append(blocks, anthropic.ToolUseBlockParam{
						Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
						ID:    anthropic.F(p.ToolCallID),
						Name:  anthropic.F(p.ToolName),
						Input: anthropic.F(input),
					})
				}
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{Role: anthropic.F(anthropic.MessageParamRoleAssistant), Content: anthropic.F(blocks)})
			}
		}
	}

	if req.UserMessage != "" {
		blocks := []anthropic.ContentBlockParamUnion{
			anthropic.TextBlockParam{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F(req.UserMessage)},
		}
		for _, img := range req.AttachedImages {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Data))
		}
		result = append(result, anthropic.MessageParam{Role: anthropic.F(anthropic.MessageParamRoleUser), Content: anthropic.F(blocks)})
	}

	return result
}

func partsToContentBlocks(parts []Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			blocks = append(blocks, anthropic.TextBlockParam{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F(p.Text)})
		case PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MimeType, p.Data))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.TextBlockParam{Type: anthropic.F(anthropic.TextBlockParamTypeText), Text: anthropic.F("")})
	}
	return blocks
}

func buildAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionUnionParam {
	var result []anthropic.ToolUnionUnionParam
	for _, t := range tools {
		var schema map[string]interface{}
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &schema)
		}
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		result = append(result, anthropic.ToolParam{
			Name:        anthropic.F(t.Name),
			Description: anthropic.F(t.Description),
			InputSchema: anthropic.F[interface{}](schema),
		})
	}
	return result
}

// Cost estimates USD cost from usage against static per-model pricing.
func (a *Anthropic) Cost(model string, usage Usage) float64 {
	for prefix, price := range anthropicPricing {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return float64(usage.InputTokens)/1_000_000*price[0] + float64(usage.OutputTokens)/1_000_000*price[1]
		}
	}
	return 0
}
