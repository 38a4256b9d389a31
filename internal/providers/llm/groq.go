package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/sashabaranov/go-openai"
)

const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Groq talks to Groq's OpenAI-compatible chat completions endpoint.
type Groq struct {
	client *openai.Client
	model  string
}

func NewGroq(apiKey, baseURL, model string, hc *http.Client) (*Groq, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == "your_groq_api_key_here" {
		return nil, ErrNotConfigured
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if hc != nil {
		cfg.HTTPClient = hc
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &Groq{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (g *Groq) Close() error { return nil }

func (g *Groq) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	const op = "Groq.Complete"

	model := opts.Model
	if model == "" {
		model = g.model
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isAuthError(err) {
			return "", utils.E(utils.CodeMisconfigured, op, "authentication failed", err)
		}
		if ctx.Err() != nil {
			return "", utils.E(utils.CodeTimeout, op, "completion cancelled", err)
		}
		return "", utils.E(utils.CodeUpstream, op, "completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", utils.E(utils.CodeUpstream, op, "empty completion", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden {
			return true
		}
	}
	return false
}
