package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ErrNotConfigured is returned by providers built without credentials.
var ErrNotConfigured = errors.New("llm: provider not configured")

type Provider interface {
	// Complete returns a single completion for the conversation.
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
	Close() error
}
