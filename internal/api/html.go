package api

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders assistant answers for clients that want HTML. GFM is
// required because capability output leans on tables.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts an assistant answer to HTML.
func renderMarkdown(text string) (string, error) {
	var b strings.Builder
	if err := markdown.Convert([]byte(text), &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
