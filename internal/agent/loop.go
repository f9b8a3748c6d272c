// Package agent runs the conversation loop: one inbound staff message
// becomes zero or more capability invocations and exactly one final
// natural-language answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scope-engine/scope-assistant/internal/llm"
	"github.com/scope-engine/scope-assistant/internal/prompts"
	"github.com/scope-engine/scope-assistant/internal/tools"
)

// defaultMaxIter bounds the tool-call iterations per inbound message.
const defaultMaxIter = 8

// Turn roles in conversation history.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Result is the outcome of processing one inbound message.
type Result struct {
	Response     string
	HasToolCalls bool
}

// Loop drives the model/tool iteration for one message. It is stateless
// and safe for concurrent use; conversation history belongs to the
// caller's session.
type Loop struct {
	logger   *slog.Logger
	llm      llm.Client
	model    string
	registry *tools.Registry
	maxIter  int
}

// NewLoop creates a conversation loop over the given model client and
// capability registry. maxIter <= 0 selects the default iteration cap.
func NewLoop(logger *slog.Logger, client llm.Client, model string, registry *tools.Registry, maxIter int) *Loop {
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	return &Loop{
		logger:   logger,
		llm:      client,
		model:    model,
		registry: registry,
		maxIter:  maxIter,
	}
}

// ProcessMessage runs the loop for one inbound message against the
// given history. The history is read-only here; the caller appends the
// resulting turns.
func (l *Loop) ProcessMessage(ctx context.Context, history []Turn, message string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("cannot process empty text parameter")
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: prompts.System})
	for _, t := range history {
		role := "user"
		if t.Role == RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	toolDefs := l.registry.List()
	start := time.Now()
	usedTools := false

	for i := range l.maxIter {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn cancelled: %w", err)
		}

		l.logger.Debug("model call",
			"iter", i,
			"model", l.model,
			"msgs", len(messages),
		)

		resp, err := l.llm.Chat(ctx, l.model, messages, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("model call failed (iter %d): %w", i, err)
		}

		l.logger.Debug("model response",
			"iter", i,
			"tool_calls", len(resp.Message.ToolCalls),
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)

		// No tool calls means we have the final answer.
		if len(resp.Message.ToolCalls) == 0 {
			l.logger.Info("turn complete",
				"iterations", i+1,
				"used_tools", usedTools,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return &Result{
				Response:     SanitizeResponse(resp.Message.Content),
				HasToolCalls: usedTools,
			}, nil
		}

		messages = append(messages, resp.Message)
		for _, tc := range resp.Message.ToolCalls {
			argsJSON := ""
			if tc.Function.Arguments != nil {
				argsBytes, _ := json.Marshal(tc.Function.Arguments)
				argsJSON = string(argsBytes)
			}

			toolStart := time.Now()
			result, err := l.registry.Execute(ctx, tc.Function.Name, argsJSON)
			if err != nil {
				// A failed or unknown capability feeds back to the
				// model as a textual result, never an abort.
				result = "Error: " + err.Error()
				l.logger.Error("tool exec failed",
					"tool", tc.Function.Name,
					"error", err,
				)
			} else {
				l.logger.Debug("tool exec done",
					"tool", tc.Function.Name,
					"result_len", len(result),
					"elapsed", time.Since(toolStart).Round(time.Millisecond),
				)
			}
			usedTools = true

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	l.logger.Warn("turn iteration cap reached",
		"max_iter", l.maxIter,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &Result{
		Response:     prompts.MaxIterationsFallback,
		HasToolCalls: usedTools,
	}, nil
}
