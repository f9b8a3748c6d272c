// Package prompts contains the LLM prompt text used by the assistant.
//
// Prompt text is Go code rather than config files because it is program
// logic: it is embedded at compile time, validated by tests, and
// versioned with the behavior it drives. User-facing configuration
// lives in scope.yaml; this package holds what we send to models.
package prompts
