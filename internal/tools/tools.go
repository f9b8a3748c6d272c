package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Tool represents a callable capability.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the available capabilities. It is populated once at
// construction and read-only afterwards; registration order is preserved
// so the model always sees a stable capability list.
type Registry struct {
	tools map[string]*Tool
	order []string

	store    ComplaintStore
	searcher Searcher
	notifier Notifier
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// List returns all tool definitions for the model, in registration order.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments. Arguments are
// validated and coerced against the tool's parameter schema before the
// handler runs, so a malformed call never reaches a collaborator.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", &ErrInvalidArguments{ToolName: name, Reason: fmt.Sprintf("arguments are not valid JSON: %v", err)}
		}
	}

	coerced, err := validateArgs(tool, args)
	if err != nil {
		return "", err
	}

	return tool.Handler(ctx, coerced)
}

// validateArgs checks required parameters and coerces values to the
// schema's declared types. Integer parameters arrive from JSON as
// float64 (or occasionally as quoted strings from smaller models); both
// are normalized to int64.
func validateArgs(tool *Tool, args map[string]any) (map[string]any, error) {
	props, _ := tool.Parameters["properties"].(map[string]any)
	required, _ := tool.Parameters["required"].([]string)

	for _, key := range required {
		if _, ok := args[key]; !ok {
			return nil, &ErrInvalidArguments{ToolName: tool.Name, Reason: fmt.Sprintf("missing required parameter %q", key)}
		}
	}

	coerced := make(map[string]any, len(args))
	for key, val := range args {
		spec, ok := props[key].(map[string]any)
		if !ok {
			// Unknown extra parameters are dropped rather than rejected.
			continue
		}

		switch spec["type"] {
		case "integer":
			n, err := coerceInt(val)
			if err != nil {
				return nil, &ErrInvalidArguments{ToolName: tool.Name, Reason: fmt.Sprintf("parameter %q: %v", key, err)}
			}
			coerced[key] = n
		case "string":
			s, ok := val.(string)
			if !ok {
				return nil, &ErrInvalidArguments{ToolName: tool.Name, Reason: fmt.Sprintf("parameter %q must be a string", key)}
			}
			coerced[key] = s
		default:
			coerced[key] = val
		}
	}

	return coerced, nil
}

func coerceInt(val any) (int64, error) {
	switch v := val.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", v)
		}
		return n, nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", val)
	}
}

// intArg reads a coerced integer argument.
func intArg(args map[string]any, key string) (int64, bool) {
	n, ok := args[key].(int64)
	return n, ok
}

// stringArg reads a coerced string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}
