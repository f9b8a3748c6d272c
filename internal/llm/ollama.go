package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/scope-engine/scope-assistant/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		httpClient: httpkit.NewClient(
			// Models with tools can take a while to respond.
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithTransport(longResponseTransport()),
		),
	}
}

// longResponseTransport allows slow models to think before sending headers.
func longResponseTransport() *http.Transport {
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 2 * time.Minute
	return t
}

// ollamaChatRequest is the request format for the Ollama chat API.
type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

// ollamaChatResponse is the response from the Ollama chat API.
type ollamaChatResponse struct {
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("model API error %d: %s", resp.StatusCode, errBody)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	msg := chatResp.Message
	// Some models emit tool calls as JSON in the content instead of the
	// native tool_calls field.
	if len(msg.ToolCalls) == 0 && msg.Content != "" {
		if parsed := parseTextToolCalls(msg.Content); len(parsed) > 0 {
			msg.ToolCalls = parsed
			msg.Content = ""
		}
	}

	created, _ := time.Parse(time.RFC3339Nano, chatResp.CreatedAt)
	return &ChatResponse{
		Model:        chatResp.Model,
		CreatedAt:    created,
		Message:      msg,
		InputTokens:  chatResp.PromptEvalCount,
		OutputTokens: chatResp.EvalCount,
	}, nil
}

// parseTextToolCalls attempts to extract tool calls from content text.
// Handles the common formats:
//   - Raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array: [{"name": "...", "arguments": {...}}]
//   - Tagged: <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if strings.Contains(content, "<tool_call>") {
		start := strings.Index(content, "<tool_call>")
		end := strings.Index(content, "</tool_call>")
		if start != -1 && end > start {
			content = strings.TrimSpace(content[start+len("<tool_call>") : end])
		} else if start != -1 {
			content = strings.TrimSpace(content[start+len("<tool_call>"):])
		}
	}

	type rawCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var calls []rawCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		result := make([]ToolCall, 0, len(calls))
		for _, c := range calls {
			if c.Name == "" {
				return nil
			}
			result = append(result, NewToolCall("", c.Name, c.Arguments))
		}
		return result
	}

	var single rawCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []ToolCall{NewToolCall("", single.Name, single.Arguments)}
	}

	return nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model request failed: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model API error %d", resp.StatusCode)
	}

	return nil
}
