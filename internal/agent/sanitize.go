package agent

import (
	"strings"

	"github.com/scope-engine/scope-assistant/internal/prompts"
)

// fence is the code-block delimiter models sometimes wrap whole answers in.
const fence = "```"

// SanitizeResponse post-processes a raw model answer into user-safe
// text. Empty or whitespace-only answers become a fixed fallback
// sentence. A single wrapping code fence is stripped, keeping interior
// content verbatim. Sanitizing already-clean text is a no-op.
func SanitizeResponse(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return prompts.EmptyResponseFallback
	}

	if strings.HasPrefix(text, fence) {
		// Drop the opening fence line, including any language tag
		// after the backticks.
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, fence)
		}
	}
	if strings.HasSuffix(strings.TrimSpace(text), fence) {
		text = strings.TrimSpace(text)
		text = strings.TrimSuffix(text, fence)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return prompts.EmptyResponseFallback
	}
	return text
}
