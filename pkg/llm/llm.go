package llm

import (
	"context"
	"regexp"
	"strings"
)

// Chat message roles on the OpenAI wire protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMProvider streams completion tokens for a conversation. The token
// channel closes when the completion ends. The error channel carries at
// most one error and closes together with the token channel. Context
// cancellation stops the stream without reporting an error.
type LLMProvider interface {
	StreamCompletion(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

var numberedItemRe = regexp.MustCompile(`(\d+)\.`)

var markdownReplacer = strings.NewReplacer("#", "", "**", "", "`", "")

// SanitizeChunk strips Markdown noise that reads badly when spoken:
// headings, bold markers, code ticks and the dot after list numbers.
func SanitizeChunk(s string) string {
	if s == "" {
		return s
	}
	s = markdownReplacer.Replace(s)
	return numberedItemRe.ReplaceAllString(s, "$1")
}
