package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens bounds Anthropic responses. Capability output plus a
// short staff-facing answer fits comfortably.
const defaultMaxTokens = 4096

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Chat sends a non-streaming messages request to Anthropic.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	system, params := buildAnthropicMessages(messages)

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  params,
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		req.Tools = buildAnthropicTools(tools)
	}

	resp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	var content strings.Builder
	var toolCalls []ToolCall
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, fmt.Errorf("decode tool input for %s: %w", b.Name, err)
				}
			}
			toolCalls = append(toolCalls, NewToolCall(b.ID, b.Name, args))
		}
	}

	return &ChatResponse{
		Model: string(resp.Model),
		Message: Message{
			Role:      "assistant",
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// buildAnthropicMessages converts unified messages to Anthropic params.
// System messages are lifted out (Anthropic takes them as a top-level
// field) and consecutive tool results are batched into a single user
// message, per the Messages API alternation rules.
func buildAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system strings.Builder
	var params []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			params = append(params, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case "system":
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)

		case "tool":
			pendingResults = append(pendingResults,
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))

		case "assistant":
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := any(tc.Function.Arguments)
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(blocks) > 0 {
				params = append(params, anthropic.NewAssistantMessage(blocks...))
			}

		default: // user
			flushResults()
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flushResults()

	return system.String(), params
}

// buildAnthropicTools converts registry tool definitions (Ollama wire
// shape: {"type":"function","function":{...}}) to Anthropic tool params.
func buildAnthropicTools(tools []map[string]any) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		fn, _ := t["function"].(map[string]any)
		if fn == nil {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		schema, _ := fn["parameters"].(map[string]any)

		tool := anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(desc),
		}
		if schema != nil {
			tool.InputSchema = anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
			}
			if req, ok := schema["required"].([]string); ok {
				tool.InputSchema.Required = req
			}
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

// Ping verifies the credential by listing available models.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("model provider unreachable: %w", err)
	}
	return nil
}
